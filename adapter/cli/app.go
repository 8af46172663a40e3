package cli

import (
	availabilityQueries "github.com/felixgeelhaar/reslot/internal/availability/application/queries"
	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	rescheduleCommands "github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	rescheduleQueries "github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
)

// App holds the CLI application dependencies.
type App struct {
	// Availability Query Handlers
	FindFreeSlotsHandler *availabilityQueries.FindFreeSlotsHandler

	// Reschedule Command Handlers
	RequestRescheduleHandler *rescheduleCommands.RequestRescheduleHandler
	SelectCandidateHandler   *rescheduleCommands.SelectCandidateHandler
	CancelSessionHandler     *rescheduleCommands.CancelSessionHandler

	// Reschedule Query Handlers
	GetSessionHandler   *rescheduleQueries.GetSessionHandler
	ListAttemptsHandler *rescheduleQueries.ListAttemptsHandler

	// Auth
	OAuthService *identityOAuth.Registry

	// Health
	Health *observability.HealthRegistry

	// CurrentUserID is the user whose calendar is read and written.
	CurrentUserID uuid.UUID
}

// NewApp creates a new CLI application with the provided handlers.
func NewApp(
	findFreeSlotsHandler *availabilityQueries.FindFreeSlotsHandler,
	requestRescheduleHandler *rescheduleCommands.RequestRescheduleHandler,
	selectCandidateHandler *rescheduleCommands.SelectCandidateHandler,
	cancelSessionHandler *rescheduleCommands.CancelSessionHandler,
	getSessionHandler *rescheduleQueries.GetSessionHandler,
	listAttemptsHandler *rescheduleQueries.ListAttemptsHandler,
) *App {
	return &App{
		FindFreeSlotsHandler:     findFreeSlotsHandler,
		RequestRescheduleHandler: requestRescheduleHandler,
		SelectCandidateHandler:   selectCandidateHandler,
		CancelSessionHandler:     cancelSessionHandler,
		GetSessionHandler:        getSessionHandler,
		ListAttemptsHandler:      listAttemptsHandler,
		CurrentUserID:            uuid.Nil,
	}
}

// SetCurrentUserID updates the current user ID.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

// SetOAuthService updates the OAuth service.
func (a *App) SetOAuthService(service *identityOAuth.Registry) {
	a.OAuthService = service
}

// SetHealth updates the health registry.
func (a *App) SetHealth(health *observability.HealthRegistry) {
	a.Health = health
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

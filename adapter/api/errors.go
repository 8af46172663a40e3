package api

import (
	"errors"
	"fmt"
	"net/http"

	availabilityQueries "github.com/felixgeelhaar/reslot/internal/availability/application/queries"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/resilience"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
)

// APIError represents an API error.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func badRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "bad_request", Message: message}
}

// mapError translates the domain error taxonomy to a response. Errors the
// taxonomy does not name are collaborator failures and get fallback.
func mapError(err error, fallback int) *APIError {
	status, code := fallback, "provider_error"
	if fallback == http.StatusInternalServerError {
		code = "internal_error"
	}

	switch {
	case errors.Is(err, domain.ErrInvalidSelection),
		errors.Is(err, commands.ErrEventIDRequired),
		errors.Is(err, availabilityQueries.ErrNoAttendees),
		errors.Is(err, availability.ErrInvalidInterval):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, calendarDomain.ErrEventNotFound):
		status, code = http.StatusNotFound, "event_not_found"
	case errors.Is(err, domain.ErrSessionClosed):
		status, code = http.StatusConflict, "session_closed"
	case errors.Is(err, resilience.ErrCircuitOpen):
		status, code = http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, calendarDomain.ErrReadOnlyProvider):
		status, code = http.StatusBadGateway, "provider_read_only"
	}
	return &APIError{Status: status, Code: code, Message: err.Error()}
}

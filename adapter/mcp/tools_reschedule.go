package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/reslot/adapter/cli"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
)

type rescheduleRequestInput struct {
	EventID   string   `json:"event_id" jsonschema:"required"`
	Attendees []string `json:"attendees,omitempty"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	Days      int      `json:"days,omitempty"`
}

type rescheduleSelectInput struct {
	SessionID string `json:"session_id" jsonschema:"required"`
	Index     int    `json:"index"`
}

type rescheduleSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"required"`
}

type rescheduleAttemptsInput struct {
	SessionID string `json:"session_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type rescheduleRequestOutput struct {
	Session      queries.SessionDTO `json:"session"`
	SupersededID string             `json:"superseded_id,omitempty"`
}

type rescheduleTools struct {
	app *cli.App
	now func() time.Time
}

var errRescheduleUnavailable = errors.New("reschedule requires a configured calendar provider")

func (t rescheduleTools) ready() error {
	if t.app == nil || t.app.RequestRescheduleHandler == nil {
		return errRescheduleUnavailable
	}
	return nil
}

func (t rescheduleTools) request(ctx context.Context, input rescheduleRequestInput) (*rescheduleRequestOutput, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	window, err := parseWindow(input.From, input.To, input.Days, t.now())
	if err != nil {
		return nil, err
	}

	result, err := t.app.RequestRescheduleHandler.Handle(ctx, commands.RequestRescheduleCommand{
		UserID:    t.app.CurrentUserID,
		EventID:   input.EventID,
		Attendees: input.Attendees,
		Window:    window,
	})
	if err != nil {
		return nil, err
	}

	out := &rescheduleRequestOutput{Session: queries.ToSessionDTO(result.Session)}
	if result.Superseded != nil {
		out.SupersededID = result.Superseded.ID().String()
	}
	return out, nil
}

func (t rescheduleTools) selectCandidate(ctx context.Context, input rescheduleSelectInput) (*queries.SessionDTO, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	id, err := parseUUID(input.SessionID)
	if err != nil {
		return nil, err
	}

	result, err := t.app.SelectCandidateHandler.Handle(ctx, commands.SelectCandidateCommand{
		UserID:    t.app.CurrentUserID,
		SessionID: id,
		Index:     input.Index,
	})
	if err != nil {
		return nil, err
	}
	dto := queries.ToSessionDTO(result.Session)
	return &dto, nil
}

func (t rescheduleTools) cancel(ctx context.Context, input rescheduleSessionInput) (*queries.SessionDTO, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	id, err := parseUUID(input.SessionID)
	if err != nil {
		return nil, err
	}

	session, err := t.app.CancelSessionHandler.Handle(ctx, commands.CancelSessionCommand{
		UserID:    t.app.CurrentUserID,
		SessionID: id,
	})
	if err != nil {
		return nil, err
	}
	dto := queries.ToSessionDTO(session)
	return &dto, nil
}

func (t rescheduleTools) show(ctx context.Context, input rescheduleSessionInput) (*queries.SessionDTO, error) {
	if t.app == nil || t.app.GetSessionHandler == nil {
		return nil, errRescheduleUnavailable
	}
	id, err := parseUUID(input.SessionID)
	if err != nil {
		return nil, err
	}
	return t.app.GetSessionHandler.Handle(ctx, queries.GetSessionQuery{
		UserID:    t.app.CurrentUserID,
		SessionID: id,
	})
}

func (t rescheduleTools) attempts(ctx context.Context, input rescheduleAttemptsInput) ([]queries.RescheduleAttemptDTO, error) {
	if t.app == nil || t.app.ListAttemptsHandler == nil {
		return nil, errors.New("attempt history requires database connection")
	}
	id, err := parseOptionalUUID(input.SessionID)
	if err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	return t.app.ListAttemptsHandler.Handle(ctx, queries.ListAttemptsQuery{
		UserID:    t.app.CurrentUserID,
		SessionID: id,
		Limit:     limit,
	})
}

func registerRescheduleTools(srv *mcp.Server, deps ToolDependencies) error {
	tools := rescheduleTools{app: deps.App, now: time.Now}

	srv.Tool("reschedule.request").
		Description("Open a reschedule session offering the first free slots shared by a meeting's attendees. Candidate indexes start at 0; an empty candidate list means no slot fits the window.").
		Handler(tools.request)

	srv.Tool("reschedule.select").
		Description("Move the meeting to one of the session's candidates by index").
		Handler(tools.selectCandidate)

	srv.Tool("reschedule.cancel").
		Description("Cancel an open reschedule session").
		Handler(tools.cancel)

	srv.Tool("reschedule.show").
		Description("Get a reschedule session and its candidates").
		Handler(tools.show)

	srv.Tool("reschedule.attempts").
		Description("List calendar writes made by reschedule.select, including failures").
		Handler(tools.attempts)

	return nil
}

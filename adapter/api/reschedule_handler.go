package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	availabilityQueries "github.com/felixgeelhaar/reslot/internal/availability/application/queries"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
)

// RescheduleHandler handles reschedule API requests for one user.
type RescheduleHandler struct {
	findFree     *availabilityQueries.FindFreeSlotsHandler
	request      *commands.RequestRescheduleHandler
	selectSlot   *commands.SelectCandidateHandler
	cancel       *commands.CancelSessionHandler
	getSession   *queries.GetSessionHandler
	listAttempts *queries.ListAttemptsHandler
	userID       uuid.UUID
	logger       *slog.Logger
}

// RescheduleHandlerConfig holds dependencies for the reschedule handler.
type RescheduleHandlerConfig struct {
	FindFree     *availabilityQueries.FindFreeSlotsHandler
	Request      *commands.RequestRescheduleHandler
	Select       *commands.SelectCandidateHandler
	Cancel       *commands.CancelSessionHandler
	GetSession   *queries.GetSessionHandler
	ListAttempts *queries.ListAttemptsHandler
	UserID       uuid.UUID
	Logger       *slog.Logger
}

// NewRescheduleHandler creates a new reschedule handler.
func NewRescheduleHandler(cfg RescheduleHandlerConfig) *RescheduleHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RescheduleHandler{
		findFree:     cfg.FindFree,
		request:      cfg.Request,
		selectSlot:   cfg.Select,
		cancel:       cfg.Cancel,
		getSession:   cfg.GetSession,
		listAttempts: cfg.ListAttempts,
		userID:       cfg.UserID,
		logger:       cfg.Logger,
	}
}

type requestBody struct {
	EventID   string     `json:"event_id"`
	Attendees []string   `json:"attendees,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

type requestResponse struct {
	queries.SessionDTO
	SupersededID *uuid.UUID `json:"superseded_id,omitempty"`
}

type selectBody struct {
	Index *int `json:"index"`
}

// Request handles POST /api/v1/reschedules. A session without candidates is
// a 200 like any other; clients read status and no_slots.
func (h *RescheduleHandler) Request(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, badRequest(err.Error()))
		return
	}

	var window availability.SearchWindow
	switch {
	case body.From == nil && body.To == nil:
	case body.From == nil || body.To == nil:
		writeError(w, badRequest("from and to must be set together"))
		return
	default:
		window = availability.NewSearchWindow(*body.From, *body.To)
	}

	result, err := h.request.Handle(r.Context(), commands.RequestRescheduleCommand{
		UserID:    h.userID,
		EventID:   body.EventID,
		Attendees: body.Attendees,
		Window:    window,
	})
	if err != nil {
		h.fail(w, r, "request reschedule", err, http.StatusBadGateway)
		return
	}

	resp := requestResponse{SessionDTO: queries.ToSessionDTO(result.Session)}
	if result.Superseded != nil {
		id := result.Superseded.ID()
		resp.SupersededID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/reschedules/{id}.
func (h *RescheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	dto, err := h.getSession.Handle(r.Context(), queries.GetSessionQuery{UserID: h.userID, SessionID: id})
	if err != nil {
		h.fail(w, r, "get session", err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// Select handles POST /api/v1/reschedules/{id}/select.
func (h *RescheduleHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var body selectBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, badRequest(err.Error()))
		return
	}
	if body.Index == nil {
		writeError(w, badRequest("index is required"))
		return
	}

	result, err := h.selectSlot.Handle(r.Context(), commands.SelectCandidateCommand{
		UserID:    h.userID,
		SessionID: id,
		Index:     *body.Index,
	})
	if err != nil {
		h.fail(w, r, "select candidate", err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, queries.ToSessionDTO(result.Session))
}

// Cancel handles POST /api/v1/reschedules/{id}/cancel.
func (h *RescheduleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.cancel.Handle(r.Context(), commands.CancelSessionCommand{UserID: h.userID, SessionID: id})
	if err != nil {
		h.fail(w, r, "cancel session", err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, queries.ToSessionDTO(session))
}

// Attempts handles GET /api/v1/reschedules/{id}/attempts.
func (h *RescheduleHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	attempts, err := h.listAttempts.Handle(r.Context(), queries.ListAttemptsQuery{UserID: h.userID, SessionID: id})
	if err != nil {
		h.fail(w, r, "list attempts", err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

type freeSlot struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMin int       `json:"duration_min"`
}

// Availability handles GET /api/v1/availability?attendee=a&attendee=b.
func (h *RescheduleHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var window availability.SearchWindow
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, badRequest("from must be RFC 3339"))
			return
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, badRequest("to must be RFC 3339"))
			return
		}
		window = availability.NewSearchWindow(start, end)
	}

	result, err := h.findFree.Handle(r.Context(), availabilityQueries.FindFreeSlotsQuery{
		UserID:      h.userID,
		Attendees:   q["attendee"],
		Window:      window,
		Limit:       parseIntParam(r, "limit", 0),
		MinDuration: time.Duration(parseIntParam(r, "min", 0)) * time.Minute,
		ExcludeSelf: parseBoolParam(r, "exclude_self", false),
	})
	if err != nil {
		h.fail(w, r, "find free slots", err, http.StatusBadGateway)
		return
	}

	free := make([]freeSlot, 0, len(result.Free))
	for _, iv := range result.Free {
		free = append(free, freeSlot{Start: iv.Start(), End: iv.End(), DurationMin: int(iv.Duration().Minutes())})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attendees":    result.Attendees,
		"window_start": result.Window.Start,
		"window_end":   result.Window.End,
		"free":         free,
	})
}

func (h *RescheduleHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error, fallback int) {
	apiErr := mapError(err, fallback)
	if apiErr.Status >= http.StatusInternalServerError {
		ctx := r.Context()
		if id := r.PathValue("id"); id != "" {
			ctx = observability.WithLogAttrs(ctx, "session_id", id)
		}
		h.logger.ErrorContext(ctx, op+" failed", "error", err, "status", apiErr.Status)
	}
	writeError(w, apiErr)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, badRequest("invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func parseIntParam(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseBoolParam(r *http.Request, key string, defaultVal bool) bool {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}

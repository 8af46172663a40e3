package queries

import (
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/google/uuid"
)

// CandidateDTO is one offered slot.
type CandidateDTO struct {
	Index       int       `json:"index"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMin int       `json:"duration_min"`
}

// SessionDTO is a read model of a reschedule session.
type SessionDTO struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	EventID     string         `json:"event_id"`
	Attendees   []string       `json:"attendees"`
	Status      string         `json:"status"`
	CloseReason string         `json:"close_reason,omitempty"`
	NoSlots     bool           `json:"no_slots"`
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	Candidates  []CandidateDTO `json:"candidates"`
	Chosen      *CandidateDTO  `json:"chosen,omitempty"`
}

// ToSessionDTO converts a session to its read model.
func ToSessionDTO(s *domain.Session) SessionDTO {
	dto := SessionDTO{
		ID:          s.ID(),
		UserID:      s.UserID(),
		EventID:     s.EventID(),
		Attendees:   s.Attendees(),
		Status:      string(s.Status()),
		CloseReason: string(s.CloseReason()),
		NoSlots:     s.NoSlots(),
		WindowStart: s.Window().Start,
		WindowEnd:   s.Window().End,
		CreatedAt:   s.CreatedAt(),
		ExpiresAt:   s.ExpiresAt(),
		ClosedAt:    s.ClosedAt(),
		Candidates:  make([]CandidateDTO, 0, len(s.Candidates())),
	}
	for _, c := range s.Candidates() {
		dto.Candidates = append(dto.Candidates, toCandidateDTO(c))
	}
	if chosen, ok := s.Chosen(); ok {
		c := toCandidateDTO(chosen)
		dto.Chosen = &c
	}
	return dto
}

func toCandidateDTO(c domain.Candidate) CandidateDTO {
	return CandidateDTO{
		Index:       c.Index,
		Start:       c.Slot.Start(),
		End:         c.Slot.End(),
		DurationMin: int(c.Slot.Duration().Minutes()),
	}
}

// In returns a copy with every instant in loc, for display.
func (d SessionDTO) In(loc *time.Location) SessionDTO {
	if loc == nil {
		return d
	}
	d.WindowStart = d.WindowStart.In(loc)
	d.WindowEnd = d.WindowEnd.In(loc)
	d.CreatedAt = d.CreatedAt.In(loc)
	d.ExpiresAt = d.ExpiresAt.In(loc)
	if d.ClosedAt != nil {
		closed := d.ClosedAt.In(loc)
		d.ClosedAt = &closed
	}
	candidates := make([]CandidateDTO, len(d.Candidates))
	for i, c := range d.Candidates {
		candidates[i] = c.In(loc)
	}
	d.Candidates = candidates
	if d.Chosen != nil {
		chosen := d.Chosen.In(loc)
		d.Chosen = &chosen
	}
	return d
}

// In returns the candidate with both bounds in loc.
func (c CandidateDTO) In(loc *time.Location) CandidateDTO {
	c.Start = c.Start.In(loc)
	c.End = c.End.In(loc)
	return c
}

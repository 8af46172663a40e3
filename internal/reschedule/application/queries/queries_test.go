package queries

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newSession(userID uuid.UUID, slots ...availability.Interval) *domain.Session {
	return domain.NewSession(domain.NewSessionParams{
		UserID:    userID,
		EventID:   "evt-1",
		Attendees: []string{"alice@example.com"},
		Window:    availability.NewSearchWindow(now, now.Add(8*time.Hour)),
		Slots:     slots,
		TTL:       5 * time.Minute,
		Now:       now,
	})
}

func TestGetSession(t *testing.T) {
	store := persistence.NewMemorySessionStore(persistence.StoreOptions{})
	userID := uuid.New()
	session := newSession(userID,
		availability.MustInterval(now, now.Add(time.Hour)),
		availability.MustInterval(now.Add(2*time.Hour), now.Add(150*time.Minute)),
	)
	_, err := store.Create(context.Background(), session)
	require.NoError(t, err)

	handler := NewGetSessionHandler(store)
	dto, err := handler.Handle(context.Background(), GetSessionQuery{UserID: userID, SessionID: session.ID()})
	require.NoError(t, err)
	assert.Equal(t, session.ID(), dto.ID)
	assert.Equal(t, "open", dto.Status)
	assert.False(t, dto.NoSlots)
	require.Len(t, dto.Candidates, 2)
	assert.Equal(t, 60, dto.Candidates[0].DurationMin)
	assert.Equal(t, 1, dto.Candidates[1].Index)
	assert.Equal(t, 30, dto.Candidates[1].DurationMin)
	assert.Nil(t, dto.Chosen)

	_, err = handler.Handle(context.Background(), GetSessionQuery{UserID: uuid.New(), SessionID: session.ID()})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = handler.Handle(context.Background(), GetSessionQuery{SessionID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionDTO_NoSlotsAndChosen(t *testing.T) {
	empty := ToSessionDTO(newSession(uuid.New()))
	assert.True(t, empty.NoSlots)
	assert.Equal(t, "expired", empty.Status)
	assert.Equal(t, "no_slots", empty.CloseReason)
	assert.NotNil(t, empty.Candidates)

	body, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"candidates":[]`)
	assert.Contains(t, string(body), `"no_slots":true`)

	committed := newSession(uuid.New(), availability.MustInterval(now, now.Add(time.Hour)))
	require.NoError(t, committed.Commit(0, now))
	dto := ToSessionDTO(committed)
	require.NotNil(t, dto.Chosen)
	assert.Equal(t, now, dto.Chosen.Start)
}

func TestSessionDTO_In(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	dto := ToSessionDTO(newSession(uuid.New(), availability.MustInterval(now, now.Add(time.Hour)))).In(berlin)
	assert.Equal(t, 9, dto.Candidates[0].Start.Hour())
	assert.Equal(t, berlin, dto.WindowStart.Location())
	assert.True(t, dto.Candidates[0].Start.Equal(now))
}

type mockAttempts struct {
	mock.Mock
}

func (m *mockAttempts) Create(ctx context.Context, attempt domain.RescheduleAttempt) error {
	return m.Called(ctx, attempt).Error(0)
}

func (m *mockAttempts) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.RescheduleAttempt, error) {
	args := m.Called(ctx, userID, limit)
	attempts, _ := args.Get(0).([]domain.RescheduleAttempt)
	return attempts, args.Error(1)
}

func (m *mockAttempts) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.RescheduleAttempt, error) {
	args := m.Called(ctx, sessionID)
	attempts, _ := args.Get(0).([]domain.RescheduleAttempt)
	return attempts, args.Error(1)
}

func TestListAttempts(t *testing.T) {
	userID := uuid.New()
	session := newSession(userID, availability.MustInterval(now, now.Add(time.Hour)))
	ok := domain.NewRescheduleAttempt(session, 0, now)
	ok.Succeeded(session.Candidates()[0])
	failed := domain.NewRescheduleAttempt(session, 3, now)
	failed.Failed(domain.ErrInvalidSelection)

	repo := new(mockAttempts)
	repo.On("ListByUser", mock.Anything, userID, 20).Return([]domain.RescheduleAttempt{ok, failed}, nil)
	repo.On("ListBySession", mock.Anything, session.ID()).Return([]domain.RescheduleAttempt{failed}, nil)

	handler := NewListAttemptsHandler(repo)
	byUser, err := handler.Handle(context.Background(), ListAttemptsQuery{UserID: userID, Limit: 20})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.True(t, byUser[0].Success)
	assert.Equal(t, 3, byUser[1].CandidateIdx)
	assert.Equal(t, domain.ErrInvalidSelection.Error(), byUser[1].FailureReason)

	bySession, err := handler.Handle(context.Background(), ListAttemptsQuery{SessionID: session.ID()})
	require.NoError(t, err)
	require.Len(t, bySession, 1)

	foreign, err := handler.Handle(context.Background(), ListAttemptsQuery{UserID: uuid.New(), SessionID: session.ID()})
	require.NoError(t, err)
	assert.Empty(t, foreign)
	repo.AssertExpectations(t)
}

func TestListAttempts_NotConfigured(t *testing.T) {
	_, err := NewListAttemptsHandler(nil).Handle(context.Background(), ListAttemptsQuery{})
	assert.Error(t, err)
}

package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(sh, sm, eh, em int) domain.Interval {
	return domain.MustInterval(at(sh, sm), at(eh, em))
}

func TestNewInterval(t *testing.T) {
	got, err := domain.NewInterval(at(9, 0), at(10, 0))

	require.NoError(t, err)
	assert.Equal(t, at(9, 0), got.Start())
	assert.Equal(t, at(10, 0), got.End())
	assert.Equal(t, time.Hour, got.Duration())
	assert.True(t, got.Valid())
}

func TestNewInterval_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"equal bounds", at(9, 0), at(9, 0)},
		{"inverted", at(10, 0), at(9, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewInterval(tt.start, tt.end)
			assert.ErrorIs(t, err, domain.ErrInvalidInterval)
		})
	}
}

func TestNewInterval_NormalizesToUTC(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	got, err := domain.NewInterval(time.Date(2024, 3, 11, 10, 0, 0, 0, berlin), time.Date(2024, 3, 11, 11, 0, 0, 0, berlin))

	require.NoError(t, err)
	assert.Equal(t, at(9, 0), got.Start())
	assert.Equal(t, time.UTC, got.Start().Location())
}

func TestInterval_Overlaps(t *testing.T) {
	a := iv(9, 0, 10, 0)

	assert.True(t, a.Overlaps(iv(9, 30, 11, 0)))
	assert.True(t, a.Overlaps(iv(8, 0, 12, 0)))
	assert.False(t, a.Overlaps(iv(10, 0, 11, 0)), "touching intervals do not overlap")
	assert.False(t, a.Overlaps(iv(11, 0, 12, 0)))
}

func TestInterval_Merge(t *testing.T) {
	merged, err := iv(9, 0, 10, 0).Merge(iv(9, 30, 11, 0))
	require.NoError(t, err)
	assert.True(t, merged.Equal(iv(9, 0, 11, 0)))

	merged, err = iv(10, 0, 11, 0).Merge(iv(9, 0, 10, 0))
	require.NoError(t, err)
	assert.True(t, merged.Equal(iv(9, 0, 11, 0)), "adjacent intervals merge")

	_, err = iv(9, 0, 10, 0).Merge(iv(10, 1, 11, 0))
	assert.ErrorIs(t, err, domain.ErrIntervalsDisjoint)
}

func TestInterval_Compare(t *testing.T) {
	assert.Equal(t, -1, iv(9, 0, 10, 0).Compare(iv(9, 30, 10, 0)))
	assert.Equal(t, -1, iv(9, 0, 10, 0).Compare(iv(9, 0, 11, 0)))
	assert.Equal(t, 1, iv(9, 0, 11, 0).Compare(iv(9, 0, 10, 0)))
	assert.Equal(t, 0, iv(9, 0, 10, 0).Compare(iv(9, 0, 10, 0)))
}

func TestInterval_Clip(t *testing.T) {
	window := domain.NewSearchWindow(at(9, 0), at(12, 0))

	clipped, ok := iv(8, 0, 10, 0).Clip(window)
	require.True(t, ok)
	assert.True(t, clipped.Equal(iv(9, 0, 10, 0)))

	clipped, ok = iv(11, 0, 13, 0).Clip(window)
	require.True(t, ok)
	assert.True(t, clipped.Equal(iv(11, 0, 12, 0)))

	_, ok = iv(12, 0, 13, 0).Clip(window)
	assert.False(t, ok)
}

func TestInterval_Contains(t *testing.T) {
	a := iv(9, 0, 10, 0)

	assert.True(t, a.Contains(at(9, 0)))
	assert.True(t, a.Contains(at(9, 59)))
	assert.False(t, a.Contains(at(10, 0)))
}

func TestInterval_ZeroValue(t *testing.T) {
	var zero domain.Interval

	assert.True(t, zero.IsZero())
	assert.False(t, zero.Valid())
}

func TestSearchWindow(t *testing.T) {
	w := domain.NewSearchWindow(at(9, 0), at(17, 0))
	assert.False(t, w.IsDegenerate())
	assert.Equal(t, 8*time.Hour, w.Duration())

	clamped := w.ClampStart(at(10, 30))
	assert.Equal(t, at(10, 30), clamped.Start)
	assert.Equal(t, at(9, 0), w.ClampStart(at(8, 0)).Start)

	assert.True(t, w.ClampStart(at(18, 0)).IsDegenerate())

	fromNow := domain.WindowFromNow(at(9, 0), 14)
	assert.Equal(t, at(9, 0).AddDate(0, 0, 14), fromNow.End)
}

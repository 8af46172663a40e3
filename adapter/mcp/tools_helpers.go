package mcp

import (
	"errors"
	"fmt"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// parseInstant accepts RFC 3339 or a YYYY-MM-DD date at UTC midnight.
func parseInstant(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, use RFC 3339 or YYYY-MM-DD", value)
	}
	return t, nil
}

// parseWindow builds a search window from optional bounds. With neither
// bound nor days the zero window is returned and the handler's horizon
// applies.
func parseWindow(from, to string, days int, now time.Time) (availability.SearchWindow, error) {
	if from == "" && to == "" && days <= 0 {
		return availability.SearchWindow{}, nil
	}

	start := now
	if from != "" {
		t, err := parseInstant(from)
		if err != nil {
			return availability.SearchWindow{}, err
		}
		start = t
	}
	if to != "" {
		end, err := parseInstant(to)
		if err != nil {
			return availability.SearchWindow{}, err
		}
		return availability.NewSearchWindow(start, end), nil
	}
	if days <= 0 {
		return availability.SearchWindow{}, errors.New("from needs to or days")
	}
	return availability.NewSearchWindow(start, start.AddDate(0, 0, days)), nil
}

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.UUID{}, errors.New("id is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

func parseOptionalUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, nil
	}
	return parseUUID(value)
}

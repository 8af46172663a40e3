package domain

import "errors"

var (
	ErrInvalidSelection = errors.New("selection index out of range")
	ErrSessionClosed    = errors.New("reschedule session is closed")
	ErrSessionNotFound  = errors.New("reschedule session not found")
	// ErrEventGone is returned by a commit callback when the meeting no longer
	// exists; the store expires the session instead of leaving it open.
	ErrEventGone = errors.New("event no longer exists")
)

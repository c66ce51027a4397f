package repository

import "errors"

var (
	// ErrNotFound is returned by point lookups when no row matches.
	ErrNotFound = errors.New("repository: not found")

	// ErrDuplicateEventID is returned when an event-log insert collides with
	// an existing event id. Callers treat it as "already published".
	ErrDuplicateEventID = errors.New("repository: duplicate event id")
)

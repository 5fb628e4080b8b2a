package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a referenced quiz session does not exist.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrResultNotFound indicates a result ID has no stored record.
	ErrResultNotFound = errors.New("quiz result not found")
	// ErrBatchTooLarge is returned when a push batch exceeds the configured bounds.
	ErrBatchTooLarge = errors.New("sync batch exceeds size limit")
	// ErrInvalidStatus indicates an unknown session lifecycle status.
	ErrInvalidStatus = errors.New("invalid session status")
	// ErrValidation marks request-shape failures that must surface as 400s.
	ErrValidation = errors.New("validation failed")
	// ErrNotOwner is returned when a record exists but belongs to a different principal.
	ErrNotOwner = errors.New("record owned by another user")
)

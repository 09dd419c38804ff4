package session

import (
	"errors"

	"retro/internal/board"
)

var (
	// ErrAccessDenied refuses a connection to a board the user may not see.
	ErrAccessDenied = errors.New("access denied")
	// ErrAccessRevoked ends a session whose user lost access while connected.
	ErrAccessRevoked = errors.New("access revoked")
	ErrSessionClosed = errors.New("session closed")
	ErrUnknownIntent = errors.New("unknown intent")
	// ErrForbidden rejects an intent that needs a higher role.
	ErrForbidden = errors.New("forbidden")

	ErrBoardNotFound = board.ErrBoardNotFound
)

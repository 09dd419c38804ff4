package board

import "errors"

var (
	ErrBoardNotFound  = errors.New("board not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrCardNotFound   = errors.New("card not found")
	ErrPileNotFound   = errors.New("pile not found")

	// ErrAuthorityUnavailable means the board's authority stopped or crashed.
	// Callers may attach again and retry.
	ErrAuthorityUnavailable = errors.New("board authority unavailable")

	ErrFeatureDisabled = errors.New("feature disabled on this board")
	ErrVoteLimit       = errors.New("vote limit reached")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidMove     = errors.New("invalid move")
)

// IsNotFound reports whether err refers to a missing board entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBoardNotFound) ||
		errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, ErrPileNotFound)
}

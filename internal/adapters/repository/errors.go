package repository

import "errors"

// Sentinel kinds for ranking store errors.
var (
	ErrNotFound              = errors.New("participant not found")
	ErrInvalidLimit          = errors.New("invalid leaderboard limit")
	ErrInvalidCommand        = errors.New("invalid command")
	ErrInvalidDelta          = errors.New("delta moves score out of bounds")
	ErrParticipantSuppressed = errors.New("participant suppressed")
	ErrNotSuppressed         = errors.New("participant not suppressed")
	ErrStoreClosed           = errors.New("ranking store closed")
)

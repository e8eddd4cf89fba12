package model

import "errors"

// Sentinel kinds for malformed commands.
var (
	ErrMissingParticipant = errors.New("missing participant id")
	ErrMissingCommandID   = errors.New("missing command id")
	ErrZeroDelta          = errors.New("delta must not be zero")
)

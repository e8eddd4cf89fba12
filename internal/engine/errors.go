package engine

import "errors"

// Sentinel kinds for engine lifecycle errors.
var (
	ErrInvalidBoard   = errors.New("board name must not be empty")
	ErrClosed         = errors.New("engine closed")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrLedgerGap      = errors.New("ledger generation gap")
	ErrUnknownRecord  = errors.New("unknown ledger record kind")
	ErrBoardNotFound  = errors.New("board not found")
)

package bus

import "errors"

// Sentinel kinds for bus errors.
var (
	ErrClosed     = errors.New("bus closed")
	ErrNoLatest   = errors.New("no latest event recorded")
	ErrKVDisabled = errors.New("latest-event bucket not configured")
)

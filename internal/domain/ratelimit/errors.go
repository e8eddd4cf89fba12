package ratelimit

import "errors"

// ErrRateLimited is transient: the caller may retry the same command later.
var ErrRateLimited = errors.New("rate limited")

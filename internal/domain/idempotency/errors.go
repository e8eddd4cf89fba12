package idempotency

import "errors"

// Sentinel kinds for guard rejections. Both are permanent and both surface to
// callers as a duplicate.
var (
	ErrDuplicateCommand = errors.New("command already applied")
	ErrStaleCommand     = errors.New("command older than last applied")
)

// IsRejection reports whether err is a guard rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrDuplicateCommand) || errors.Is(err, ErrStaleCommand)
}

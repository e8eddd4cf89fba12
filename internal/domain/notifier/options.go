package notifier

// Option applies a configuration option to the Notifier.
type Option func(*Notifier)

// WithSource stamps events with the producing instance id.
func WithSource(source string) Option {
	return func(n *Notifier) {
		n.source = source
	}
}

// WithScoreOnlyChanges also emits when a ranked participant's score changes
// without any position change. Off by default.
func WithScoreOnlyChanges(enabled bool) Option {
	return func(n *Notifier) {
		n.scoreOnly = enabled
	}
}

// Package timeout configures per-operation deadlines.
package timeout

import "time"

// TimeoutConfig bounds the blocking operations of one turn.
// Zero values disable the corresponding deadline.
type TimeoutConfig struct {
	// ModelCall bounds a single model round-trip.
	ModelCall time.Duration

	// ToolExecution bounds a single tool dispatch.
	ToolExecution time.Duration

	// Turn bounds an entire user-message-to-final-answer cycle.
	Turn time.Duration
}

// DefaultTimeoutConfig returns sensible deadline defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ModelCall:     2 * time.Minute,
		ToolExecution: time.Minute,
		Turn:          10 * time.Minute,
	}
}

// NoTimeouts disables all deadlines.
func NoTimeouts() TimeoutConfig {
	return TimeoutConfig{}
}

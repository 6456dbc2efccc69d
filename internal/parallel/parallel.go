// Package parallel configures concurrent tool execution.
package parallel

// ParallelConfig controls parallel tool execution within one round.
// Sibling tool calls carry no ordering dependency, so they may run
// concurrently; result ordering is handled by the caller.
type ParallelConfig struct {
	Enabled       bool
	MaxConcurrent int
}

// DefaultParallelConfig returns default settings for tool execution.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		Enabled:       true,
		MaxConcurrent: 4,
	}
}

package convo

import (
	"fmt"

	"github.com/convoagent/convo/internal/conversation"
	"github.com/convoagent/convo/providers"
)

// Re-exported error types and sentinels.
var (
	// ErrConversationNotFound is returned when a conversation doesn't exist.
	ErrConversationNotFound = conversation.ErrConversationNotFound

	// ErrModelUnavailable matches any ModelUnavailableError via errors.Is.
	ErrModelUnavailable = providers.ErrModelUnavailable
)

// ModelUnavailableError reports a failed model call. The turn fails and
// nothing is persisted, since no assistant content was produced.
type ModelUnavailableError = providers.ModelUnavailableError

// DuplicateToolError reports a tool name collision at registration time.
// Registration is all-or-nothing, so the registry is unchanged.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("convo: duplicate tool %q", e.Name)
}

// UnknownToolError reports a dispatch for a tool no client registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("convo: unknown tool %q", e.Name)
}

// ToolExecutionError wraps a failure from a tool client. The agent loop
// recovers it into a tool-result message rather than aborting the turn.
type ToolExecutionError struct {
	Name string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("convo: tool %q execution failed: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ToolLoopExceededError reports that a turn hit the model round-trip bound
// before the model produced a final answer. The partial message sequence,
// including all tool interactions so far, is still returned and persisted.
type ToolLoopExceededError struct {
	Rounds int
}

func (e *ToolLoopExceededError) Error() string {
	return fmt.Sprintf("convo: tool loop exceeded %d model round-trips without a final answer", e.Rounds)
}

// Package providers defines provider-agnostic interfaces and domain models for
// chat-completion model gateways.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider defines the interface for a conversational model gateway.
// Implementations: OpenAI-compatible endpoints, mocks, etc.
type Provider interface {
	// Complete generates a non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream generates a streaming completion.
	Stream(ctx context.Context, req CompletionRequest) (StreamReader, error)

	// Name returns the provider name (e.g., "openai", "mock").
	Name() string
}

// StreamReader provides access to streaming chunks.
//
// A stream is a finite, non-restartable sequence: zero or more content deltas
// followed by exactly one terminal chunk (IsComplete set). The concatenation
// of the deltas equals the content a non-streaming call would have returned
// for the same response.
type StreamReader interface {
	// Next returns the next chunk or io.EOF when complete.
	Next() (*StreamChunk, error)

	// Close closes the stream.
	Close() error
}

// CompletionRequest represents a provider-agnostic request for completion.
// The message sequence carries the system instruction as its first message.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float32
	MaxTokens   int
}

// CompletionResponse represents a provider-agnostic completion response.
// Exactly one of the following holds: Content is the final answer and
// ToolCalls is empty, or ToolCalls is non-empty and Content may be empty.
type CompletionResponse struct {
	ID           string
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        TokenUsage
	Model        string
	Created      time.Time
}

// Message represents a single message in a conversation. The JSON encoding is
// also the persisted form, so a saved conversation reloads identically.
type Message struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCall represents a request to execute a tool. The ID is unique within
// the assistant message that carries it and links the eventual tool-result
// message back to this call.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition defines a tool that can be called by the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
	FinishReasonError     FinishReason = "error"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk represents a chunk of streaming response. Non-terminal chunks
// carry a content delta; the terminal chunk (IsComplete) carries the finish
// reason and, when the model requested tools, the fully assembled tool calls.
type StreamChunk struct {
	Content      string
	IsComplete   bool
	FinishReason FinishReason
	ToolCalls    []ToolCall
	Usage        *TokenUsage
}

// ErrModelUnavailable is the sentinel matched by errors.Is for any
// ModelUnavailableError, used by retry policies.
var ErrModelUnavailable = errors.New("providers: model unavailable")

// ModelUnavailableError reports a failed call to the underlying model
// endpoint. Gateways perform no retries; retry policy belongs to the caller.
type ModelUnavailableError struct {
	Provider string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model provider %q unavailable: %v", e.Provider, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// Is reports ErrModelUnavailable so callers can match the class without the
// concrete type.
func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

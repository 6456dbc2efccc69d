package convo

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/convoagent/convo/providers"
)

// ToolClient exposes a set of tools from a single backend. Two realizations
// ship with the module: an HTTP-backed client and a spawned-process-backed
// client (see the mcptool package); the agent loop is agnostic to which.
type ToolClient interface {
	// ListTools returns the definitions of every tool the backend serves.
	ListTools(ctx context.Context) ([]providers.ToolDefinition, error)

	// Invoke executes a named tool and returns its textual result.
	Invoke(ctx context.Context, name string, arguments map[string]any) (string, error)

	// Close releases the underlying transport.
	Close() error
}

// Registry maps flat tool names to the client that owns them. Tool names are
// globally unique across all registered clients; the model sees one flat
// namespace and the registry routes each dispatch to the right backend.
type Registry struct {
	mu      sync.RWMutex
	owners  map[string]ToolClient
	defs    []providers.ToolDefinition
	clients []ToolClient
	logger  *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		owners: make(map[string]ToolClient),
		logger: logger,
	}
}

// Register lists the client's tools and claims their names. Registration is
// all-or-nothing: a name collision, with an already-registered tool or within
// the client's own batch, returns a DuplicateToolError and leaves the
// registry unchanged.
func (r *Registry) Register(ctx context.Context, client ToolClient) error {
	defs, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if _, exists := r.owners[def.Name]; exists {
			return &DuplicateToolError{Name: def.Name}
		}
		if _, dup := seen[def.Name]; dup {
			return &DuplicateToolError{Name: def.Name}
		}
		seen[def.Name] = struct{}{}
	}

	for _, def := range defs {
		r.owners[def.Name] = client
		r.defs = append(r.defs, def)
		r.logger.Debug("tool registered", "tool", def.Name)
	}
	r.clients = append(r.clients, client)

	return nil
}

// Definitions returns the union of all registered tool definitions, in
// registration order. The returned slice is a copy.
func (r *Registry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, len(r.defs))
	copy(defs, r.defs)
	return defs
}

// Dispatch routes an invocation to the owning client. An unregistered name
// returns an UnknownToolError; a client failure is wrapped in a
// ToolExecutionError.
func (r *Registry) Dispatch(ctx context.Context, name string, arguments map[string]any) (string, error) {
	r.mu.RLock()
	client, ok := r.owners[name]
	r.mu.RUnlock()

	if !ok {
		return "", &UnknownToolError{Name: name}
	}

	result, err := client.Invoke(ctx, name, arguments)
	if err != nil {
		return "", &ToolExecutionError{Name: name, Err: err}
	}
	return result, nil
}

// Close closes every registered client, returning the joined errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, client := range r.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

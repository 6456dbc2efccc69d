package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/convoagent/convo/providers"
)

// DisconnectPolicy controls what happens to an in-flight streaming turn when
// the caller goes away.
type DisconnectPolicy int

const (
	// DisconnectFinishTurn lets the turn run to completion and persists the
	// result; events that can no longer be delivered are dropped.
	DisconnectFinishTurn DisconnectPolicy = iota

	// DisconnectAbort cancels the turn; nothing from the aborted turn is
	// persisted.
	DisconnectAbort
)

const defaultEventBuffer = 10

// Manager is the conversation façade: it owns the load/seed/append/persist
// cycle around the agent loop, identically for streaming and non-streaming
// turns.
//
// At most one in-flight chat call per conversation ID is assumed; concurrent
// calls against the same ID are not coordinated and race on persistence
// (last write wins).
type Manager struct {
	agent            *Agent
	store            ConversationStore
	systemPrompt     string
	disconnectPolicy DisconnectPolicy
	eventBuffer      int
	logger           *slog.Logger
}

// ManagerConfig holds manager configuration.
type ManagerConfig struct {
	// Agent runs the orchestration loop. Required.
	Agent *Agent

	// Store persists conversations. Required.
	Store ConversationStore

	// SystemPrompt seeds new conversations. Defaults to SystemPrompt.
	SystemPrompt string

	// DisconnectPolicy controls in-flight streaming turns on disconnect.
	DisconnectPolicy DisconnectPolicy

	// EventBuffer sizes the streaming event channel.
	EventBuffer int

	Logger *slog.Logger
}

// NewManager creates a conversation manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Agent == nil {
		return nil, errors.New("convo: Agent is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("convo: Store is required")
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = SystemPrompt
	}

	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		agent:            cfg.Agent,
		store:            cfg.Store,
		systemPrompt:     systemPrompt,
		disconnectPolicy: cfg.DisconnectPolicy,
		eventBuffer:      eventBuffer,
		logger:           logger,
	}, nil
}

// Summary is the listing view of a conversation.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ChatResult is the outcome of a non-streaming chat turn.
type ChatResult struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id"`
}

// Create starts a new, empty conversation.
func (m *Manager) Create(ctx context.Context, title string) (Conversation, error) {
	if title == "" {
		title = "New Conversation"
	}

	now := time.Now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []providers.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Save(ctx, conv); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	m.logger.Info("conversation created", "conversation_id", conv.ID, "title", title)
	return conv, nil
}

// List returns summaries of all conversations, most recently updated first.
// Index entries whose record has been deleted are skipped.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	ids, err := m.store.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		conv, err := m.store.Load(ctx, id)
		if errors.Is(err, ErrConversationNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		summaries = append(summaries, Summary{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
		})
	}

	return summaries, nil
}

// Get returns a conversation by ID, or ErrConversationNotFound.
func (m *Manager) Get(ctx context.Context, id string) (Conversation, error) {
	return m.store.Load(ctx, id)
}

// Delete removes a conversation, reporting whether it existed.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	return m.store.Delete(ctx, id)
}

// Chat runs one non-streaming turn. The updated history is persisted on
// success and on ToolLoopExceededError (no work is silently lost); a model
// failure persists nothing, since no assistant content was produced.
func (m *Manager) Chat(ctx context.Context, id, userMessage string) (ChatResult, error) {
	conv, msgs, err := m.seedTurn(ctx, id, userMessage)
	if err != nil {
		return ChatResult{}, err
	}

	updated, final, runErr := m.agent.Run(ctx, msgs)

	if runErr != nil && !isLoopExceeded(runErr) {
		return ChatResult{}, runErr
	}
	if err := m.persist(ctx, conv, updated); err != nil {
		return ChatResult{}, err
	}
	if runErr != nil {
		return ChatResult{}, runErr
	}

	return ChatResult{Content: final, ConversationID: id}, nil
}

// ChatStream runs one streaming turn. The first event identifies the
// conversation; content deltas and tool dispatch notices follow; the stream
// ends with a done event after persistence, or an error event. The channel
// is closed when the turn is over.
func (m *Manager) ChatStream(ctx context.Context, id, userMessage string) (<-chan Event, error) {
	conv, msgs, err := m.seedTurn(ctx, id, userMessage)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, m.eventBuffer)

	// Undeliverable events are dropped rather than blocking the turn.
	send := func(e Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	runCtx := ctx
	if m.disconnectPolicy == DisconnectFinishTurn {
		runCtx = context.WithoutCancel(ctx)
	}

	go func() {
		defer close(events)

		send(ConversationEvent(id))

		updated, _, runErr := m.agent.RunStream(runCtx, msgs, send)

		if runErr == nil || isLoopExceeded(runErr) {
			if err := m.persist(runCtx, conv, updated); err != nil {
				runErr = err
			}
		}
		if runErr != nil {
			send(ErrorEvent(runErr))
			return
		}

		send(DoneEvent())
	}()

	return events, nil
}

// seedTurn loads the conversation, prepends the system instruction on the
// first turn, and appends the user message.
func (m *Manager) seedTurn(ctx context.Context, id, userMessage string) (Conversation, []providers.Message, error) {
	conv, err := m.store.Load(ctx, id)
	if err != nil {
		return Conversation{}, nil, err
	}

	msgs := make([]providers.Message, 0, len(conv.Messages)+2)
	if len(conv.Messages) == 0 {
		msgs = append(msgs, providers.Message{
			Role:    providers.RoleSystem,
			Content: m.systemPrompt,
		})
	}
	msgs = append(msgs, conv.Messages...)
	msgs = append(msgs, providers.Message{
		Role:    providers.RoleUser,
		Content: userMessage,
	})

	return conv, msgs, nil
}

func (m *Manager) persist(ctx context.Context, conv Conversation, msgs []providers.Message) error {
	conv.Messages = msgs
	conv.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, conv); err != nil {
		m.logger.Error("conversation persist failed", "conversation_id", conv.ID, "error", err)
		return fmt.Errorf("persist conversation %s: %w", conv.ID, err)
	}
	return nil
}

func isLoopExceeded(err error) bool {
	var loopErr *ToolLoopExceededError
	return errors.As(err, &loopErr)
}

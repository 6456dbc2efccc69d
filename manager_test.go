package convo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/convoagent/convo/providers"
	"github.com/convoagent/convo/providers/mock"
)

func newTestManager(t *testing.T, provider providers.Provider, registry *Registry) (*Manager, ConversationStore) {
	t.Helper()

	agent := newTestAgent(t, provider, registry)
	store := NewMemoryConversationStore()

	manager, err := NewManager(ManagerConfig{
		Agent: agent,
		Store: store,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return manager, store
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(ManagerConfig{Store: NewMemoryConversationStore()}); err == nil {
		t.Error("expected error for missing agent")
	}

	agent := newTestAgent(t, mock.New(), nil)
	if _, err := NewManager(ManagerConfig{Agent: agent}); err == nil {
		t.Error("expected error for missing store")
	}
}

func TestManager_CreateAndGet(t *testing.T) {
	manager, _ := newTestManager(t, mock.New(), nil)

	conv, err := manager.Create(context.Background(), "My chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected a generated conversation ID")
	}
	if conv.Title != "My chat" {
		t.Errorf("unexpected title: %q", conv.Title)
	}
	if len(conv.Messages) != 0 {
		t.Errorf("expected empty message list, got %d", len(conv.Messages))
	}

	loaded, err := manager.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.ID != conv.ID || loaded.Title != conv.Title {
		t.Errorf("loaded conversation differs: %+v", loaded)
	}
}

func TestManager_Get_NotFound(t *testing.T) {
	manager, _ := newTestManager(t, mock.New(), nil)

	_, err := manager.Get(context.Background(), "missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestManager_List_RecencyOrder(t *testing.T) {
	manager, store := newTestManager(t, mock.New(), nil)
	ctx := context.Background()

	first, err := manager.Create(ctx, "first")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second, err := manager.Create(ctx, "second")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Touch the first conversation so it becomes the most recent.
	conv, err := store.Load(ctx, first.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	conv.UpdatedAt = time.Now().UTC().Add(time.Minute)
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	summaries, err := manager.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != first.ID || summaries[1].ID != second.ID {
		t.Errorf("unexpected order: %s, %s", summaries[0].ID, summaries[1].ID)
	}
}

func TestManager_Delete(t *testing.T) {
	manager, _ := newTestManager(t, mock.New(), nil)
	ctx := context.Background()

	conv, err := manager.Create(ctx, "doomed")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	deleted, err := manager.Delete(ctx, conv.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report true")
	}

	// Deleting again reports false, not an error.
	deleted, err = manager.Delete(ctx, conv.ID)
	if err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if deleted {
		t.Error("expected second delete to report false")
	}
}

func TestManager_Chat_FirstTurnSeedsSystemPrompt(t *testing.T) {
	provider := mock.New().WithResponse("Hello!", nil)
	manager, store := newTestManager(t, provider, nil)
	ctx := context.Background()

	conv, err := manager.Create(ctx, "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	result, err := manager.Chat(ctx, conv.ID, "Hi")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if result.Content != "Hello!" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if result.ConversationID != conv.ID {
		t.Errorf("unexpected conversation id: %q", result.ConversationID)
	}

	persisted, err := store.Load(ctx, conv.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(persisted.Messages) != 3 {
		t.Fatalf("expected 3 persisted messages, got %d", len(persisted.Messages))
	}
	if persisted.Messages[0].Role != providers.RoleSystem || persisted.Messages[0].Content != SystemPrompt {
		t.Errorf("expected system instruction first, got %+v", persisted.Messages[0])
	}
	if persisted.Messages[1].Role != providers.RoleUser || persisted.Messages[1].Content != "Hi" {
		t.Errorf("expected user message second, got %+v", persisted.Messages[1])
	}
	if persisted.Messages[2].Role != providers.RoleAssistant {
		t.Errorf("expected assistant message third, got %+v", persisted.Messages[2])
	}
}

func TestManager_Chat_SecondTurnDoesNotReseed(t *testing.T) {
	provider := mock.New().
		WithResponse("first answer", nil).
		WithResponse("second answer", nil)
	manager, store := newTestManager(t, provider, nil)
	ctx := context.Background()

	conv, err := manager.Create(ctx, "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := manager.Chat(ctx, conv.ID, "one"); err != nil {
		t.Fatalf("first chat failed: %v", err)
	}
	if _, err := manager.Chat(ctx, conv.ID, "two"); err != nil {
		t.Fatalf("second chat failed: %v", err)
	}

	persisted, err := store.Load(ctx, conv.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	// system, user, assistant, user, assistant
	if len(persisted.Messages) != 5 {
		t.Fatalf("expected 5 persisted messages, got %d", len(persisted.Messages))
	}
	systemCount := 0
	for _, msg := range persisted.Messages {
		if msg.Role == providers.RoleSystem {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Errorf("expected exactly one system message, got %d", systemCount)
	}
}

func TestManager_Chat_NotFound(t *testing.T) {
	manager, _ := newTestManager(t, mock.New(), nil)

	_, err := manager.Chat(context.Background(), "missing", "Hi")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestManager_Chat_ToolFailureScenario(t *testing.T) {
	registry := NewRegistry(nil)
	client := &fakeToolClient{
		defs: defsNamed("search"),
		invoke: func(ctx context.Context, name string, args map[string]any) (string, error) {
			return "", context.DeadlineExceeded
		},
	}
	if err := registry.Register(context.Background(), client); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	provider := mock.New().
		WithResponse("", []providers.ToolCall{{ID: "call_1", Name: "search", Arguments: map[string]any{}}}).
		WithResponse("Search timed out, please retry.", nil)
	manager, store := newTestManager(t, provider, registry)
	ctx := context.Background()

	conv, err := manager.Create(ctx, "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	result, err := manager.Chat(ctx, conv.ID, "find bob")
	if err != nil {
		t.Fatalf("expected turn to complete, got %v", err)
	}
	if result.Content != "Search timed out, please retry." {
		t.Errorf("unexpected content: %q", result.Content)
	}

	persisted, err := store.Load(ctx, conv.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	var toolMsg *providers.Message
	for i := range persisted.Messages {
		if persisted.Messages[i].Role == providers.RoleTool {
			toolMsg = &persisted.Messages[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("expected a persisted tool-result message")
	}
	if !strings.Contains(toolMsg.Content, "tool execution failed") {
		t.Errorf("expected failure description, got %q", toolMsg.Content)
	}
}

func TestManager_Chat_LoopExceededPersistsPartialHistory(t *testing.T) {
	registry := NewRegistry(nil)
	if err := registry.Register(context.Background(), &fakeToolClient{defs: defsNamed("loop")}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	provider := mock.New()
	for i := 0; i < 10; i++ {
		provider.WithResponse("", []providers.ToolCall{{ID: "call_1", Name: "loop", Arguments: map[string]any{}}})
	}

	agent, err := New(Config{
		Provider:      provider,
		Registry:      registry,
		MaxToolRounds: 2,
		Retry:         &RetryConfig{MaxRetries: 0},
	})
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	store := NewMemoryConversationStore()
	manager, err := NewManager(ManagerConfig{Agent: agent, Store: store})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	ctx := context.Background()

	conv, err := manager.Create(ctx, "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = manager.Chat(ctx, conv.ID, "never stops")
	var loopErr *ToolLoopExceededError
	if !errors.As(err, &loopErr) {
		t.Fatalf("expected ToolLoopExceededError, got %v", err)
	}

	persisted, err := store.Load(ctx, conv.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	// system + user + 2 * (assistant + tool result): truncated but persisted.
	if len(persisted.Messages) != 6 {
		t.Errorf("expected 6 persisted messages, got %d", len(persisted.Messages))
	}
}

func TestManager_Chat_ModelFailurePersistsNothing(t *testing.T) {
	provider := mock.New().WithError(&providers.ModelUnavailableError{
		Provider: "mock",
		Err:      errors.New("503"),
	})
	manager, store := newTestManager(t, provider, nil)
	ctx := context.Background()

	conv, err := manager.Create(ctx, "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = manager.Chat(ctx, conv.ID, "Hi")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}

	persisted, err := store.Load(ctx, conv.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(persisted.Messages) != 0 {
		t.Errorf("expected no persisted messages after model failure, got %d", len(persisted.Messages))
	}
}

func TestManager_ChatStream_EventOrderAndPersistence(t *testing.T) {
	provider := mock.New().WithStream([]providers.StreamChunk{
		{Content: "Hel"},
		{Content: "lo"},
		{IsComplete: true, FinishReason: providers.FinishReasonStop},
	})
	manager, store := newTestManager(t, provider, nil)
	ctx := context.Background()

	conv, err := manager.Create(ctx, "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	events, err := manager.ChatStream(ctx, conv.ID, "Hi")
	if err != nil {
		t.Fatalf("chat stream failed: %v", err)
	}

	var collected []Event
	for event := range events {
		collected = append(collected, event)

		// The done event is emitted only after persistence.
		if event.Type == EventTypeDone {
			persisted, err := store.Load(ctx, conv.ID)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if len(persisted.Messages) != 3 {
				t.Errorf("expected 3 persisted messages at done, got %d", len(persisted.Messages))
			}
		}
	}

	if len(collected) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(collected))
	}
	if collected[0].Type != EventTypeConversation {
		t.Fatalf("expected conversation event first, got %s", collected[0].Type)
	}
	if collected[0].Data["conversation_id"] != conv.ID {
		t.Errorf("unexpected conversation id in first event: %+v", collected[0].Data)
	}
	if collected[len(collected)-1].Type != EventTypeDone {
		t.Errorf("expected done event last, got %s", collected[len(collected)-1].Type)
	}

	var text strings.Builder
	for _, e := range collected {
		if e.Type == EventTypeContentDelta {
			text.WriteString(e.Data["delta"].(string))
		}
	}
	if text.String() != "Hello" {
		t.Errorf("expected streamed text Hello, got %q", text.String())
	}
}

func TestManager_ChatStream_NotFound(t *testing.T) {
	manager, _ := newTestManager(t, mock.New(), nil)

	_, err := manager.ChatStream(context.Background(), "missing", "Hi")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestManager_ChatStream_DisconnectFinishTurnPersists(t *testing.T) {
	provider := mock.New().WithStream([]providers.StreamChunk{
		{Content: "Hello"},
		{IsComplete: true, FinishReason: providers.FinishReasonStop},
	})
	manager, store := newTestManager(t, provider, nil)

	conv, err := manager.Create(context.Background(), "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// The caller disconnects before consuming a single event. FinishTurn
	// detaches the run from the caller context, so the turn still completes
	// and persists; undeliverable events are dropped.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, err := manager.ChatStream(ctx, conv.ID, "Hi")
	if err != nil {
		t.Fatalf("chat stream failed: %v", err)
	}
	for range events {
	}

	persisted, err := store.Load(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(persisted.Messages) != 3 {
		t.Fatalf("expected 3 persisted messages after disconnect, got %d", len(persisted.Messages))
	}
	last := persisted.Messages[2]
	if last.Role != providers.RoleAssistant || last.Content != "Hello" {
		t.Errorf("expected completed assistant message, got %+v", last)
	}
}

func TestManager_ChatStream_DisconnectAbortPersistsNothing(t *testing.T) {
	provider := mock.New().WithStream([]providers.StreamChunk{
		{Content: "Hello"},
		{IsComplete: true, FinishReason: providers.FinishReasonStop},
	})
	agent := newTestAgent(t, provider, nil)
	store := NewMemoryConversationStore()
	manager, err := NewManager(ManagerConfig{
		Agent:            agent,
		Store:            store,
		DisconnectPolicy: DisconnectAbort,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	conv, err := manager.Create(context.Background(), "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Abort cancels the turn with the caller: nothing from it is persisted.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, err := manager.ChatStream(ctx, conv.ID, "Hi")
	if err != nil {
		t.Fatalf("chat stream failed: %v", err)
	}
	for range events {
	}

	persisted, err := store.Load(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(persisted.Messages) != 0 {
		t.Errorf("expected no persisted messages after abort, got %d", len(persisted.Messages))
	}
}

func TestManager_ChatStream_ErrorFrame(t *testing.T) {
	provider := mock.New().WithStreamError(&providers.ModelUnavailableError{
		Provider: "mock",
		Err:      errors.New("stream reset"),
	})
	manager, store := newTestManager(t, provider, nil)
	ctx := context.Background()

	conv, err := manager.Create(ctx, "chat")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	events, err := manager.ChatStream(ctx, conv.ID, "Hi")
	if err != nil {
		t.Fatalf("chat stream failed: %v", err)
	}

	var collected []Event
	for event := range events {
		collected = append(collected, event)
	}

	last := collected[len(collected)-1]
	if last.Type != EventTypeError {
		t.Fatalf("expected error frame last, got %s", last.Type)
	}
	if msg, _ := last.Data["error"].(string); !strings.Contains(msg, "unavailable") {
		t.Errorf("unexpected error frame: %+v", last.Data)
	}

	persisted, err := store.Load(ctx, conv.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(persisted.Messages) != 0 {
		t.Errorf("expected no persisted messages after stream failure, got %d", len(persisted.Messages))
	}
}

package convo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/convoagent/convo/internal/retry"
	"github.com/convoagent/convo/providers"
)

// EventSink receives observable events during a streaming turn.
type EventSink func(Event)

// Run executes one turn over the given message history. It returns the
// extended history, the final assistant text, and an error. On
// ToolLoopExceededError the returned history still carries every tool
// interaction so far, so no work is silently lost.
func (a *Agent) Run(ctx context.Context, history []providers.Message) ([]providers.Message, string, error) {
	return a.runTurn(ctx, history, nil)
}

// RunStream executes one turn, forwarding text fragments and tool dispatch
// notices to sink as they arrive. The state machine is identical to Run;
// only the model step differs.
func (a *Agent) RunStream(ctx context.Context, history []providers.Message, sink EventSink) ([]providers.Message, string, error) {
	if sink == nil {
		sink = func(Event) {}
	}
	return a.runTurn(ctx, history, sink)
}

func (a *Agent) runTurn(ctx context.Context, history []providers.Message, sink EventSink) ([]providers.Message, string, error) {
	ctx, cancel := a.withTurnTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}

	ctx = a.applyTurnStart(ctx, lastUserContent(history))

	updated, final, err := a.runLoop(ctx, history, sink)
	a.applyTurnComplete(ctx, final, err)

	return updated, final, err
}

// runLoop drives the state machine: await the model, execute any requested
// tool calls, repeat, until the model returns a final message or the round
// bound fires.
func (a *Agent) runLoop(ctx context.Context, history []providers.Message, sink EventSink) ([]providers.Message, string, error) {
	msgs := make([]providers.Message, len(history))
	copy(msgs, history)

	tools := a.registry.Definitions()

	for round := 0; round < a.maxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return msgs, "", fmt.Errorf("turn aborted: %w", err)
		}

		a.logger.Debug("model round", "round", round+1, "max", a.maxToolRounds, "history_len", len(msgs))

		req := providers.CompletionRequest{
			Model:       a.model,
			Messages:    msgs,
			Tools:       tools,
			Temperature: a.temperature,
			MaxTokens:   a.maxTokens,
		}

		var resp *providers.CompletionResponse
		var err error
		if sink != nil {
			resp, err = a.streamRound(ctx, req, sink)
		} else {
			resp, err = a.completeRound(ctx, req)
		}
		if err != nil {
			return msgs, "", err
		}

		msgs = append(msgs, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			a.logger.Info("turn completed", "rounds", round+1, "output_length", len(resp.Content))
			return msgs, resp.Content, nil
		}

		results := a.executeToolCalls(ctx, resp.ToolCalls, sink)
		msgs = append(msgs, results...)
	}

	return msgs, "", &ToolLoopExceededError{Rounds: a.maxToolRounds}
}

// completeRound executes a single non-streaming model round-trip.
func (a *Agent) completeRound(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	callCtx := a.applyModelCall(ctx, req)
	callCtx, cancel := a.withModelTimeout(callCtx)
	if cancel != nil {
		defer cancel()
	}

	resp, err := retry.WithRetry(callCtx, a.retryConfig, func() (*providers.CompletionResponse, error) {
		return a.provider.Complete(callCtx, req)
	})
	a.applyModelResponse(callCtx, resp, err)
	if err != nil {
		a.logger.Error("completion failed", "model", a.model, "error", err)
		return nil, err
	}

	if a.loggingConfig.LogResponses {
		a.logger.Info("completion received",
			"content_length", len(resp.Content),
			"tool_calls", len(resp.ToolCalls),
			"finish_reason", resp.FinishReason)
	}

	return resp, nil
}

// streamRound executes a single streaming model round-trip, forwarding text
// fragments to sink and assembling the terminal chunk into a response.
func (a *Agent) streamRound(ctx context.Context, req providers.CompletionRequest, sink EventSink) (*providers.CompletionResponse, error) {
	callCtx := a.applyModelCall(ctx, req)
	callCtx, cancel := a.withModelTimeout(callCtx)
	if cancel != nil {
		defer cancel()
	}

	stream, err := retry.WithRetry(callCtx, a.retryConfig, func() (providers.StreamReader, error) {
		return a.provider.Stream(callCtx, req)
	})
	if err != nil {
		a.applyModelResponse(callCtx, nil, err)
		a.logger.Error("stream open failed", "model", a.model, "error", err)
		return nil, err
	}
	defer stream.Close()

	var content strings.Builder
	resp := &providers.CompletionResponse{
		Model:        a.model,
		FinishReason: providers.FinishReasonStop,
	}

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			a.applyModelResponse(callCtx, nil, err)
			a.logger.Error("stream read failed", "model", a.model, "error", err)
			return nil, err
		}

		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			sink(ContentDelta(chunk.Content))
		}

		if chunk.IsComplete {
			resp.FinishReason = chunk.FinishReason
			resp.ToolCalls = chunk.ToolCalls
			if chunk.Usage != nil {
				resp.Usage = *chunk.Usage
			}
			break
		}
	}

	resp.Content = content.String()
	a.applyModelResponse(callCtx, resp, nil)

	return resp, nil
}

// lastUserContent returns the content of the most recent user message, used
// as the turn input for middleware hooks.
func lastUserContent(history []providers.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == providers.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

package convo

import (
	"context"
	"fmt"

	"github.com/convoagent/convo/providers"
)

// executeToolCalls runs every tool call of one round and returns their
// result messages in declaration order. Sibling calls carry no ordering
// dependency, so they may run concurrently; the collector re-orders results
// by declaration index.
func (a *Agent) executeToolCalls(ctx context.Context, toolCalls []providers.ToolCall, sink EventSink) []providers.Message {
	if len(toolCalls) == 0 {
		return nil
	}

	if a.parallelConfig.Enabled && len(toolCalls) > 1 {
		return a.executeToolCallsParallel(ctx, toolCalls, sink)
	}
	return a.executeToolCallsSequential(ctx, toolCalls, sink)
}

func (a *Agent) executeToolCallsSequential(ctx context.Context, toolCalls []providers.ToolCall, sink EventSink) []providers.Message {
	messages := make([]providers.Message, 0, len(toolCalls))

	for _, call := range toolCalls {
		messages = append(messages, a.executeToolCall(ctx, call, sink))
	}

	return messages
}

func (a *Agent) executeToolCallsParallel(ctx context.Context, toolCalls []providers.ToolCall, sink EventSink) []providers.Message {
	type result struct {
		index int
		msg   providers.Message
	}

	resultChan := make(chan result, len(toolCalls))
	sem := make(chan struct{}, a.parallelConfig.MaxConcurrent)

	for i, call := range toolCalls {
		sem <- struct{}{}
		go func(idx int, tc providers.ToolCall) {
			defer func() { <-sem }()
			resultChan <- result{index: idx, msg: a.executeToolCall(ctx, tc, sink)}
		}(i, call)
	}

	messages := make([]providers.Message, len(toolCalls))
	for range toolCalls {
		r := <-resultChan
		messages[r.index] = r.msg
	}

	return messages
}

// executeToolCall dispatches one call through the registry. A failure does
// not abort the turn: it becomes a tool-result message describing the
// failure, so the model can react to it on the next round.
func (a *Agent) executeToolCall(ctx context.Context, call providers.ToolCall, sink EventSink) providers.Message {
	if sink != nil {
		sink(ToolCallEvent(call.Name, call.ID))
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	toolCtx := a.applyToolStart(ctx, call.Name, args)
	toolCtx, cancel := a.withToolTimeout(toolCtx)
	if cancel != nil {
		defer cancel()
	}

	result, err := a.registry.Dispatch(toolCtx, call.Name, args)
	a.applyToolComplete(toolCtx, call.Name, result, err)

	var content string
	if err != nil {
		content = fmt.Sprintf("tool execution failed: %v", err)
		a.logger.Error("tool execution failed", "tool", call.Name, "error", err)
	} else {
		content = result
		if a.loggingConfig.LogToolCalls {
			a.logger.Info("tool executed", "tool", call.Name, "result_length", len(result))
		}
	}

	return providers.Message{
		Role:       providers.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

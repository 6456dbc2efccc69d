package convo

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/convoagent/convo/middleware"
	"github.com/convoagent/convo/providers"
)

const tracerName = "github.com/convoagent/convo"

// TracingMiddleware emits OpenTelemetry spans around turns, model calls, and
// tool executions. Spans nest naturally: model and tool spans are children
// of the turn span through the context chain.
type TracingMiddleware struct {
	middleware.BaseMiddleware
	tracer trace.Tracer
}

// NewTracingMiddleware creates tracing middleware. A nil provider falls back
// to the globally registered one.
func NewTracingMiddleware(tp trace.TracerProvider) *TracingMiddleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingMiddleware{tracer: tp.Tracer(tracerName)}
}

func (t *TracingMiddleware) OnTurnStart(ctx context.Context, input string) context.Context {
	ctx, _ = t.tracer.Start(ctx, "agent.turn",
		trace.WithAttributes(attribute.Int("turn.input_length", len(input))),
	)
	return ctx
}

func (t *TracingMiddleware) OnTurnComplete(ctx context.Context, output string, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("turn.output_length", len(output)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *TracingMiddleware) OnModelCall(ctx context.Context, req any) context.Context {
	var attrs []attribute.KeyValue
	if r, ok := req.(providers.CompletionRequest); ok {
		attrs = append(attrs,
			attribute.String("model.name", r.Model),
			attribute.Int("model.messages", len(r.Messages)),
			attribute.Int("model.tools", len(r.Tools)),
		)
	}
	ctx, _ = t.tracer.Start(ctx, "model.complete", trace.WithAttributes(attrs...))
	return ctx
}

func (t *TracingMiddleware) OnModelResponse(ctx context.Context, resp any, err error) {
	span := trace.SpanFromContext(ctx)
	if r, ok := resp.(*providers.CompletionResponse); ok && r != nil {
		span.SetAttributes(
			attribute.String("model.finish_reason", string(r.FinishReason)),
			attribute.Int("model.tool_calls", len(r.ToolCalls)),
			attribute.Int("model.total_tokens", r.Usage.TotalTokens),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *TracingMiddleware) OnToolStart(ctx context.Context, tool string, _ any) context.Context {
	ctx, _ = t.tracer.Start(ctx, "tool."+tool,
		trace.WithAttributes(attribute.String("tool.name", tool)),
	)
	return ctx
}

func (t *TracingMiddleware) OnToolComplete(ctx context.Context, tool string, _ any, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

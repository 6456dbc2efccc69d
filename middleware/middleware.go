package middleware

import "context"

// Middleware provides hooks into turn execution for observability and instrumentation.
type Middleware interface {
	OnTurnStart(ctx context.Context, input string) context.Context
	OnTurnComplete(ctx context.Context, output string, err error)
	OnToolStart(ctx context.Context, tool string, args any) context.Context
	OnToolComplete(ctx context.Context, tool string, result any, err error)
	OnModelCall(ctx context.Context, req any) context.Context
	OnModelResponse(ctx context.Context, resp any, err error)
}

// BaseMiddleware provides no-op implementations for Middleware.
// Embed this in custom middleware to implement only the hooks you need.
type BaseMiddleware struct{}

func (BaseMiddleware) OnTurnStart(ctx context.Context, _ string) context.Context { return ctx }
func (BaseMiddleware) OnTurnComplete(context.Context, string, error)             {}
func (BaseMiddleware) OnToolStart(ctx context.Context, _ string, _ any) context.Context {
	return ctx
}
func (BaseMiddleware) OnToolComplete(context.Context, string, any, error)     {}
func (BaseMiddleware) OnModelCall(ctx context.Context, _ any) context.Context { return ctx }
func (BaseMiddleware) OnModelResponse(context.Context, any, error)            {}

// Package convo provides a tool-augmented conversation loop: it turns a
// message history into zero-or-more tool invocations routed to the right
// backend, folds results back into the history, and produces either a final
// answer or an incrementally streamed one.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/convoagent/convo/internal/logging"
	"github.com/convoagent/convo/internal/parallel"
	"github.com/convoagent/convo/internal/retry"
	"github.com/convoagent/convo/internal/timeout"
	"github.com/convoagent/convo/middleware"
	"github.com/convoagent/convo/providers"
	"github.com/convoagent/convo/providers/openai"
)

// Type aliases for internal package types
type (
	RetryConfig    = retry.RetryConfig
	TimeoutConfig  = timeout.TimeoutConfig
	LoggingConfig  = logging.LoggingConfig
	ParallelConfig = parallel.ParallelConfig
	Middleware     = middleware.Middleware
	BaseMiddleware = middleware.BaseMiddleware
)

// Function re-exports for convenience
var (
	DefaultRetryConfig    = retry.DefaultRetryConfig
	DefaultTimeoutConfig  = timeout.DefaultTimeoutConfig
	DefaultLoggingConfig  = logging.DefaultLoggingConfig
	DefaultParallelConfig = parallel.DefaultParallelConfig
)

const (
	defaultModel      = "gpt-4o"
	defaultToolRounds = 5
)

// Agent runs the orchestration loop: model call, tool execution, repeat.
// It operates on an in-memory message sequence owned by the caller and never
// retains it past the call.
type Agent struct {
	provider       providers.Provider
	model          string
	registry       *Registry
	maxToolRounds  int
	temperature    float32
	maxTokens      int
	retryConfig    RetryConfig
	timeoutConfig  TimeoutConfig
	parallelConfig ParallelConfig
	loggingConfig  LoggingConfig
	logger         *slog.Logger
	middlewares    []Middleware
}

// Config holds agent configuration.
type Config struct {
	// APIKey authenticates the default OpenAI provider. Ignored when
	// Provider is set.
	APIKey string

	// BaseURL points the default provider at an OpenAI-compatible endpoint.
	BaseURL string

	// Model names the model to request.
	Model string

	// Provider overrides the default OpenAI gateway.
	Provider providers.Provider

	// Registry supplies tool definitions and dispatch. Nil means no tools.
	Registry *Registry

	// MaxToolRounds bounds model round-trips per turn.
	MaxToolRounds int

	Temperature float32
	MaxTokens   int

	Retry    *RetryConfig
	Timeout  *TimeoutConfig
	Parallel *ParallelConfig
	Logging  *LoggingConfig
}

// Common validation errors.
var (
	ErrMissingAPIKey      = errors.New("convo: APIKey is required when no Provider is set")
	ErrInvalidToolRounds  = errors.New("convo: MaxToolRounds must be between 1 and 100")
	ErrInvalidTemperature = errors.New("convo: Temperature must be between 0.0 and 2.0")
)

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.APIKey == "" && c.Provider == nil {
		return ErrMissingAPIKey
	}
	if c.MaxToolRounds < 0 || c.MaxToolRounds > 100 {
		return ErrInvalidToolRounds
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return ErrInvalidTemperature
	}
	return nil
}

// New creates a new agent with the given configuration.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxToolRounds == 0 {
		cfg.MaxToolRounds = defaultToolRounds
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}

	loggingConfig := DefaultLoggingConfig()
	if cfg.Logging != nil {
		loggingConfig = *cfg.Logging
	}
	logger := logging.ResolveLogger(loggingConfig)

	retryConfig := DefaultRetryConfig()
	if cfg.Retry != nil {
		retryConfig = *cfg.Retry
	}
	if len(retryConfig.RetryableErrors) == 0 {
		retryConfig.RetryableErrors = []error{providers.ErrModelUnavailable}
	}
	if retryConfig.Logger == nil {
		retryConfig.Logger = logger
	}

	timeoutConfig := DefaultTimeoutConfig()
	if cfg.Timeout != nil {
		timeoutConfig = *cfg.Timeout
	}

	parallelConfig := DefaultParallelConfig()
	if cfg.Parallel != nil {
		parallelConfig = *cfg.Parallel
	}
	if parallelConfig.MaxConcurrent <= 0 {
		parallelConfig.MaxConcurrent = 1
	}

	provider := cfg.Provider
	if provider == nil {
		provider = openai.New(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Logger:  logger,
		})
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(logger)
	}

	return &Agent{
		provider:       provider,
		model:          cfg.Model,
		registry:       registry,
		maxToolRounds:  cfg.MaxToolRounds,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		retryConfig:    retryConfig,
		timeoutConfig:  timeoutConfig,
		parallelConfig: parallelConfig,
		loggingConfig:  loggingConfig,
		logger:         logger,
		middlewares:    nil,
	}, nil
}

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *Registry {
	return a.registry
}

// Use registers middleware for turn execution hooks.
func (a *Agent) Use(m Middleware) {
	if m == nil {
		return
	}
	a.middlewares = append(a.middlewares, m)
}

// Middleware application methods
func (a *Agent) applyTurnStart(ctx context.Context, input string) context.Context {
	for _, m := range a.middlewares {
		ctx = m.OnTurnStart(ctx, input)
	}
	return ctx
}

func (a *Agent) applyTurnComplete(ctx context.Context, output string, err error) {
	for i := len(a.middlewares) - 1; i >= 0; i-- {
		a.middlewares[i].OnTurnComplete(ctx, output, err)
	}
}

func (a *Agent) applyToolStart(ctx context.Context, tool string, args any) context.Context {
	for _, m := range a.middlewares {
		ctx = m.OnToolStart(ctx, tool, args)
	}
	return ctx
}

func (a *Agent) applyToolComplete(ctx context.Context, tool string, result any, err error) {
	for i := len(a.middlewares) - 1; i >= 0; i-- {
		a.middlewares[i].OnToolComplete(ctx, tool, result, err)
	}
}

func (a *Agent) applyModelCall(ctx context.Context, req any) context.Context {
	for _, m := range a.middlewares {
		ctx = m.OnModelCall(ctx, req)
	}
	return ctx
}

func (a *Agent) applyModelResponse(ctx context.Context, resp any, err error) {
	for i := len(a.middlewares) - 1; i >= 0; i-- {
		a.middlewares[i].OnModelResponse(ctx, resp, err)
	}
}

// Timeout helpers
func (a *Agent) withTurnTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeoutConfig.Turn <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeoutConfig.Turn)
}

func (a *Agent) withModelTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeoutConfig.ModelCall <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeoutConfig.ModelCall)
}

func (a *Agent) withToolTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeoutConfig.ToolExecution <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeoutConfig.ToolExecution)
}

// Command convod runs the conversation agent as an HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	convo "github.com/convoagent/convo"
	"github.com/convoagent/convo/httpapi"
	"github.com/convoagent/convo/mcptool"
)

type appConfig struct {
	addr         string
	apiKey       string
	model        string
	baseURL      string
	redisAddr    string
	mcpHTTP      string // "name=url,name=url"
	mcpStdio     string // "name=command arg arg,name=command arg"
	otelEndpoint string
	logLevel     slog.Level
}

func configFromEnv() appConfig {
	cfg := appConfig{
		addr:         envOr("CONVO_ADDR", ":8011"),
		apiKey:       os.Getenv("OPENAI_API_KEY"),
		model:        envOr("CONVO_MODEL", "gpt-4o"),
		baseURL:      os.Getenv("CONVO_MODEL_BASE_URL"),
		redisAddr:    envOr("REDIS_ADDR", "localhost:6379"),
		mcpHTTP:      envOr("CONVO_MCP_HTTP", "ums=http://localhost:8005/mcp"),
		mcpStdio:     envOr("CONVO_MCP_STDIO", ""),
		otelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		logLevel:     slog.LevelInfo,
	}
	if os.Getenv("CONVO_DEBUG") != "" {
		cfg.logLevel = slog.LevelDebug
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := configFromEnv()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg.otelEndpoint, logger)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer shutdownTracing()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", cfg.redisAddr, err)
	}
	defer redisClient.Close()
	logger.Info("redis connected", "addr", cfg.redisAddr)

	registry := convo.NewRegistry(logger)
	defer registry.Close()
	if err := registerToolClients(ctx, cfg, registry, logger); err != nil {
		return err
	}

	agent, err := convo.New(convo.Config{
		APIKey:   cfg.apiKey,
		BaseURL:  cfg.baseURL,
		Model:    cfg.model,
		Registry: registry,
		Logging:  &convo.LoggingConfig{Logger: logger},
	})
	if err != nil {
		return err
	}
	if cfg.otelEndpoint != "" {
		agent.Use(convo.NewTracingMiddleware(nil))
	}

	manager, err := convo.NewManager(convo.ManagerConfig{
		Agent:  agent,
		Store:  convo.NewRedisConversationStore(redisClient),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    cfg.addr,
		Handler: httpapi.NewServer(manager, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.addr, "model", cfg.model)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// registerToolClients connects the configured MCP backends and registers
// their tools. Both lists are "name=spec" pairs separated by commas; stdio
// specs are space-separated command lines.
func registerToolClients(ctx context.Context, cfg appConfig, registry *convo.Registry, logger *slog.Logger) error {
	for name, url := range parsePairs(cfg.mcpHTTP) {
		client, err := mcptool.NewHTTPClient(ctx, name, url)
		if err != nil {
			return fmt.Errorf("mcp http backend %q: %w", name, err)
		}
		if err := registry.Register(ctx, client); err != nil {
			client.Close()
			return fmt.Errorf("register backend %q: %w", name, err)
		}
		logger.Info("mcp backend registered", "name", name, "transport", "http", "url", url)
	}

	for name, command := range parsePairs(cfg.mcpStdio) {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return fmt.Errorf("mcp stdio backend %q: empty command", name)
		}
		client, err := mcptool.NewStdioClient(ctx, name, fields[0], nil, fields[1:]...)
		if err != nil {
			return fmt.Errorf("mcp stdio backend %q: %w", name, err)
		}
		if err := registry.Register(ctx, client); err != nil {
			client.Close()
			return fmt.Errorf("register backend %q: %w", name, err)
		}
		logger.Info("mcp backend registered", "name", name, "transport", "stdio", "command", fields[0])
	}

	return nil
}

func parsePairs(spec string) map[string]string {
	pairs := make(map[string]string)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		pairs[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return pairs
}

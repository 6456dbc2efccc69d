// Package mcptool adapts MCP servers into tool clients for the registry.
// Two transports are supported: streamable HTTP for remote servers and stdio
// for spawned local processes; callers depend only on the registry's client
// interface.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/convoagent/convo/providers"
)

const defaultCallTimeout = 60 * time.Second

// Client wraps an MCP client session as a tool backend.
type Client struct {
	name    string
	client  *mcpclient.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds a single tool invocation.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewHTTPClient connects to a remote MCP server over streamable HTTP and
// performs the initialize handshake.
func NewHTTPClient(ctx context.Context, name, url string, opts ...Option) (*Client, error) {
	mc, err := mcpclient.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("mcptool: connect %q: %w", name, err)
	}
	if err := mc.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcptool: start %q: %w", name, err)
	}
	return initialize(ctx, name, mc, opts)
}

// NewStdioClient spawns a local MCP server process and performs the
// initialize handshake. The process lives until Close.
func NewStdioClient(ctx context.Context, name, command string, env []string, args ...string) (*Client, error) {
	mc, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("mcptool: spawn %q: %w", name, err)
	}
	return initialize(ctx, name, mc, nil)
}

func initialize(ctx context.Context, name string, mc *mcpclient.Client, opts []Option) (*Client, error) {
	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "convo",
		Version: "0.1.0",
	}

	if _, err := mc.Initialize(ctx, initReq); err != nil {
		mc.Close()
		return nil, fmt.Errorf("mcptool: initialize %q: %w", name, err)
	}

	c := &Client{
		name:    name,
		client:  mc,
		timeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the backend name this client was registered under.
func (c *Client) Name() string { return c.name }

// ListTools returns the definitions of every tool the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]providers.ToolDefinition, error) {
	res, err := c.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcptool: list tools on %q: %w", c.name, err)
	}

	defs := make([]providers.ToolDefinition, 0, len(res.Tools))
	for _, t := range res.Tools {
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  inputSchemaToMap(t.InputSchema),
		})
	}
	return defs, nil
}

// Invoke executes a named tool. A result flagged IsError by the server is
// returned as an error carrying the server's message.
func (c *Client) Invoke(ctx context.Context, name string, arguments map[string]any) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments

	result, err := c.client.CallTool(callCtx, req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("mcptool: tool %q timed out after %s", name, c.timeout)
		}
		return "", fmt.Errorf("mcptool: tool %q: %w", name, err)
	}

	text := extractTextContent(result)
	if result.IsError {
		return "", errors.New(text)
	}
	return text, nil
}

// Close shuts down the session (and the child process for stdio transports).
func (c *Client) Close() error {
	return c.client.Close()
}

// inputSchemaToMap converts the MCP input schema to the plain JSON-Schema map
// carried in tool definitions.
func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]any {
	m := map[string]any{
		"type": schema.Type,
	}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.AdditionalProperties != nil {
		m["additionalProperties"] = schema.AdditionalProperties
	}
	return m
}

// extractTextContent concatenates all text content from a CallToolResult.
func extractTextContent(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}

// Package openai implements the Provider interface over the OpenAI
// chat-completions API, including OpenAI-compatible proxies via BaseURL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/convoagent/convo/providers"
)

// Config configures the OpenAI gateway.
type Config struct {
	// APIKey authenticates against the endpoint.
	APIKey string

	// BaseURL overrides the API base, e.g. an OpenAI-compatible proxy.
	// Empty means the public OpenAI endpoint.
	BaseURL string

	Logger *slog.Logger
}

// Provider implements providers.Provider for OpenAI-compatible endpoints.
type Provider struct {
	client *gopenai.Client
	logger *slog.Logger
}

// New creates a new OpenAI provider.
func New(cfg Config) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: gopenai.NewClientWithConfig(clientCfg),
		logger: logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Complete generates a non-streaming completion. Transport and API failures
// surface as *providers.ModelUnavailableError; no retries are attempted here.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.toAPIRequest(req))
	if err != nil {
		return nil, &providers.ModelUnavailableError{Provider: p.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &providers.ModelUnavailableError{Provider: p.Name(), Err: errors.New("response contained no choices")}
	}
	return p.fromAPIResponse(&resp), nil
}

// Stream generates a streaming completion.
func (p *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.toAPIRequest(req))
	if err != nil {
		return nil, &providers.ModelUnavailableError{Provider: p.Name(), Err: err}
	}
	return newStreamReader(stream, p.logger), nil
}

// toAPIRequest converts a provider-agnostic request to the OpenAI format.
func (p *Provider) toAPIRequest(req providers.CompletionRequest) gopenai.ChatCompletionRequest {
	messages := make([]gopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, toAPIMessage(msg))
	}

	var tools []gopenai.Tool
	for _, t := range req.Tools {
		tools = append(tools, gopenai.Tool{
			Type: gopenai.ToolTypeFunction,
			Function: &gopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return gopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func toAPIMessage(msg providers.Message) gopenai.ChatCompletionMessage {
	apiMsg := gopenai.ChatCompletionMessage{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.Name,
	}
	for _, tc := range msg.ToolCalls {
		args, err := json.Marshal(tc.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		apiMsg.ToolCalls = append(apiMsg.ToolCalls, gopenai.ToolCall{
			ID:   tc.ID,
			Type: gopenai.ToolTypeFunction,
			Function: gopenai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(args),
			},
		})
	}
	return apiMsg
}

// fromAPIResponse converts an OpenAI response to the provider-agnostic form.
func (p *Provider) fromAPIResponse(resp *gopenai.ChatCompletionResponse) *providers.CompletionResponse {
	choice := resp.Choices[0]

	domainResp := &providers.CompletionResponse{
		ID:      resp.ID,
		Content: choice.Message.Content,
		Model:   resp.Model,
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		domainResp.ToolCalls = append(domainResp.ToolCalls, providers.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseArguments(tc.Function.Arguments, p.logger),
		})
	}

	if len(domainResp.ToolCalls) > 0 {
		domainResp.FinishReason = providers.FinishReasonToolCalls
	} else {
		domainResp.FinishReason = mapFinishReason(choice.FinishReason)
	}

	return domainResp
}

func mapFinishReason(reason gopenai.FinishReason) providers.FinishReason {
	switch reason {
	case gopenai.FinishReasonToolCalls:
		return providers.FinishReasonToolCalls
	case gopenai.FinishReasonLength:
		return providers.FinishReasonLength
	default:
		return providers.FinishReasonStop
	}
}

func parseArguments(raw string, logger *slog.Logger) map[string]any {
	if raw == "" {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logger.Warn("failed to parse tool call arguments", "error", err)
		return nil
	}
	return args
}

// Stream reader implementation

// streamReader adapts the go-openai stream to providers.StreamReader. Tool
// call fragments arrive as indexed deltas and are assembled into complete
// ToolCalls on the terminal chunk.
type streamReader struct {
	stream *gopenai.ChatCompletionStream
	logger *slog.Logger

	calls        map[int]*partialToolCall
	finishReason gopenai.FinishReason
	done         bool
}

type partialToolCall struct {
	id   string
	name string
	args string
}

func newStreamReader(stream *gopenai.ChatCompletionStream, logger *slog.Logger) *streamReader {
	return &streamReader{
		stream: stream,
		logger: logger,
		calls:  make(map[int]*partialToolCall),
	}
}

func (s *streamReader) Next() (*providers.StreamChunk, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			if s.done {
				return nil, io.EOF
			}
			s.done = true
			return s.terminalChunk(), nil
		}
		if err != nil {
			return nil, &providers.ModelUnavailableError{Provider: "openai", Err: err}
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			s.accumulate(tc)
		}
		if choice.FinishReason != "" {
			s.finishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			return &providers.StreamChunk{Content: choice.Delta.Content}, nil
		}
	}
}

func (s *streamReader) Close() error {
	return s.stream.Close()
}

func (s *streamReader) accumulate(tc gopenai.ToolCall) {
	idx := 0
	if tc.Index != nil {
		idx = *tc.Index
	}
	call := s.calls[idx]
	if call == nil {
		call = &partialToolCall{}
		s.calls[idx] = call
	}
	if tc.ID != "" {
		call.id = tc.ID
	}
	if tc.Function.Name != "" {
		call.name = tc.Function.Name
	}
	call.args += tc.Function.Arguments
}

func (s *streamReader) terminalChunk() *providers.StreamChunk {
	chunk := &providers.StreamChunk{
		IsComplete:   true,
		FinishReason: mapFinishReason(s.finishReason),
	}

	if len(s.calls) == 0 {
		return chunk
	}

	indexes := make([]int, 0, len(s.calls))
	for idx := range s.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		call := s.calls[idx]
		chunk.ToolCalls = append(chunk.ToolCalls, providers.ToolCall{
			ID:        call.id,
			Name:      call.name,
			Arguments: parseArguments(call.args, s.logger),
		})
	}
	chunk.FinishReason = providers.FinishReasonToolCalls
	return chunk
}

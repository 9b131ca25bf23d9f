package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
	"github.com/rs/zerolog"
)

// ErrNoBearerToken is returned when the token source has no valid token.
var ErrNoBearerToken = errors.New("no bearer token available")

// TokenSource yields the bearer token for each request. *auth.Session
// satisfies it.
type TokenSource interface {
	Token() (string, bool)
}

// ChatCompletionsConfig configures an OpenAI-compatible chat endpoint.
type ChatCompletionsConfig struct {
	URL         string
	Model       string
	Temperature *float32
	TopP        *float32
	MaxTokens   int
	Headers     map[string]string
}

// ChatCompletionsProvider implements ports.Provider against any endpoint
// that speaks the OpenAI chat-completions wire format.
type ChatCompletionsProvider struct {
	cfg        ChatCompletionsConfig
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger
}

// NewChatCompletionsProvider creates a provider. A nil httpClient means
// http.DefaultClient.
func NewChatCompletionsProvider(cfg ChatCompletionsConfig, httpClient *http.Client, tokens TokenSource, logger zerolog.Logger) *ChatCompletionsProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ChatCompletionsProvider{
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger.With().Str("component", "chat_provider").Logger(),
	}
}

// Complete sends one non-streaming request.
func (p *ChatCompletionsProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	ctx, cancel := withTimeout(ctx, opts.TimeoutMs)
	defer cancel()

	resp, err := p.do(ctx, p.buildRequest(in, opts, false))
	if err != nil {
		return ports.Completion{}, err
	}
	defer resp.Body.Close()

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return ports.Completion{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return ports.Completion{}, fmt.Errorf("chat response carried no choices")
	}

	choice := wire.Choices[0]
	out := ports.Completion{
		Text:         contentText(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Raw:          wire,
	}
	for _, call := range choice.Message.ToolCalls {
		args := json.RawMessage(call.Function.Arguments)
		if len(bytes.TrimSpace(args)) == 0 {
			args = json.RawMessage(`{}`)
		}
		out.ToolCalls = append(out.ToolCalls, ports.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: args,
		})
	}
	if wire.Usage != nil {
		out.Usage = &ports.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Stream sends a streaming request. Text deltas arrive in order; the final
// chunk has Done set and carries Err when the stream broke. Tool calls are
// not surfaced on the streaming path.
func (p *ChatCompletionsProvider) Stream(ctx context.Context, in ports.PromptInput, opts ports.Options) (<-chan ports.CompletionChunk, error) {
	resp, err := p.do(ctx, p.buildRequest(in, opts, true))
	if err != nil {
		return nil, err
	}

	out := make(chan ports.CompletionChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		send := func(chunk ports.CompletionChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage *ports.Usage
		scanner := newSSEScanner(resp.Body)
		for scanner.Next() {
			data := scanner.Event().Data
			if data == "[DONE]" {
				send(ports.CompletionChunk{Done: true, Usage: usage})
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				send(ports.CompletionChunk{Done: true, Err: fmt.Errorf("parse stream chunk: %w", err)})
				return
			}
			if chunk.Error != nil && chunk.Error.Message != "" {
				send(ports.CompletionChunk{Done: true, Err: fmt.Errorf("stream error: %s", chunk.Error.Message)})
				return
			}
			if chunk.Usage != nil {
				usage = &ports.Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ports.CompletionChunk{DeltaText: choice.Delta.Content}) {
					return
				}
			}
		}

		// stream ended without [DONE]
		send(ports.CompletionChunk{Done: true, Usage: usage, Err: scanner.Err()})
	}()

	return out, nil
}

func (p *ChatCompletionsProvider) do(ctx context.Context, body chatRequest) (*http.Response, error) {
	token, ok := "", false
	if p.tokens != nil {
		token, ok = p.tokens.Token()
	}
	if !ok {
		return nil, ErrNoBearerToken
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	p.logger.Debug().
		Int("messages", len(body.Messages)).
		Int("tools", len(body.Tools)).
		Bool("stream", body.Stream).
		Msg("Sending chat request")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	return resp, nil
}

func (p *ChatCompletionsProvider) buildRequest(in ports.PromptInput, opts ports.Options, stream bool) chatRequest {
	req := chatRequest{
		Model:       firstNonEmpty(opts.Model, p.cfg.Model),
		Temperature: firstSet(opts.Temperature, p.cfg.Temperature),
		TopP:        firstSet(opts.TopP, p.cfg.TopP),
		MaxTokens:   p.cfg.MaxTokens,
		Stop:        opts.Stop,
		Stream:      stream,
	}
	if opts.MaxNewTokens > 0 {
		req.MaxTokens = opts.MaxNewTokens
	}

	if in.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: ports.RoleSystem, Content: textContent(in.System)})
	}
	for _, m := range in.Messages {
		req.Messages = append(req.Messages, toWireMessage(m))
	}

	for _, fn := range in.Tools {
		params := fn.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		req.Tools = append(req.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: fn.Name, Description: fn.Description, Parameters: params},
		})
	}
	if len(req.Tools) > 0 && opts.ToolChoice != "" {
		req.ToolChoice = opts.ToolChoice
	}
	return req
}

func toWireMessage(m ports.PromptMessage) chatMessage {
	wire := chatMessage{Role: m.Role, ToolCallID: m.ToolCallID, Name: m.Name}
	if m.Content != "" || m.Role != ports.RoleAssistant {
		wire.Content = textContent(m.Content)
	}
	for _, call := range m.ToolCalls {
		args := string(call.Args)
		if args == "" {
			args = "{}"
		}
		wire.ToolCalls = append(wire.ToolCalls, chatToolCall{
			ID:       call.ID,
			Type:     "function",
			Function: chatToolCallFunction{Name: call.Name, Arguments: args},
		})
	}
	return wire
}

func withTimeout(ctx context.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	if timeoutMs <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstSet returns the first non-nil value. Zero is a valid setting.
func firstSet(values ...*float32) *float32 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// textContent encodes a plain string for the polymorphic content field.
func textContent(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// contentText reads content that is either a string or an array of parts.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &parts) == nil {
		var b strings.Builder
		for _, part := range parts {
			if part.Type == "text" {
				b.WriteString(part.Text)
			}
		}
		return b.String()
	}
	return ""
}

// --- wire types ---

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []chatToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

type chatToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function chatToolCallFunction `json:"function"`
}

type chatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

var _ ports.Provider = (*ChatCompletionsProvider)(nil)

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const maxExecuteBytes = 8 << 20

type executeRequest struct {
	ServerID string          `json:"serverId"`
	ToolName string          `json:"toolName"`
	Args     json.RawMessage `json:"args"`
}

type executeResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

// mcpResult is the content envelope MCP servers wrap tool output in.
type mcpResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// Executor dispatches tool calls through the catalog's latest snapshot.
type Executor struct {
	catalog    *Catalog
	executeURL string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewExecutor creates an executor posting remote calls to executeURL.
func NewExecutor(catalog *Catalog, executeURL string, httpClient *http.Client, logger zerolog.Logger) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{
		catalog:    catalog,
		executeURL: executeURL,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "tool_executor").Logger(),
	}
}

// Execute runs one tool call. It never returns an error: every failure is
// folded into Result.Err so the caller can hand it back to the model.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) Result {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}

	r, ok := e.catalog.lookup(name)
	if !ok {
		return Failed(name, fmt.Sprintf("unknown tool %q", name))
	}

	var res Result
	if r.local != nil {
		res = e.invokeLocal(ctx, r, args)
	} else {
		res = e.invokeRemote(ctx, r.def, args)
	}

	if res.OK() && IsErrorText(res.Output) {
		res = Failed(name, res.Output)
	}

	if res.OK() {
		e.logger.Debug().Str("tool", name).Int("bytes", len(res.Output)).Msg("Tool succeeded")
	} else {
		e.logger.Warn().Str("tool", name).Err(res.Err).Msg("Tool failed")
	}
	return res
}

func (e *Executor) invokeLocal(ctx context.Context, r route, args json.RawMessage) Result {
	value, err := r.local.Invoke(ctx, args)
	if err != nil {
		return Result{Err: executionError(r.def.Name, err.Error(), err)}
	}

	switch v := value.(type) {
	case string:
		return Result{Output: v}
	case []byte:
		return Result{Output: string(v)}
	case nil:
		return Result{}
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return Result{Err: executionError(r.def.Name, "unencodable result: "+err.Error(), err)}
	}
	return Result{Output: string(encoded)}
}

func (e *Executor) invokeRemote(ctx context.Context, def ToolDefinition, args json.RawMessage) Result {
	payload, err := json.Marshal(executeRequest{ServerID: def.ServerID, ToolName: def.Name, Args: args})
	if err != nil {
		return Result{Err: executionError(def.Name, err.Error(), err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.executeURL, bytes.NewReader(payload))
	if err != nil {
		return Result{Err: executionError(def.Name, err.Error(), err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Result{Err: executionError(def.Name, err.Error(), err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExecuteBytes))
	if err != nil {
		return Result{Err: executionError(def.Name, err.Error(), err)}
	}

	var out executeResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != "" {
			return Failed(def.Name, out.Error)
		}
		return Failed(def.Name, fmt.Sprintf("tool server returned status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return Failed(def.Name, "malformed tool server response")
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "tool reported failure"
		}
		return Failed(def.Name, reason)
	}

	text, isError := renderResult(out.Result)
	if isError {
		return Failed(def.Name, text)
	}
	return Result{Output: text}
}

// renderResult flattens a result that may be a JSON string, an MCP content
// envelope or arbitrary JSON.
func renderResult(raw json.RawMessage) (text string, isError bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, false
	}

	var mcp mcpResult
	if raw[0] == '{' && json.Unmarshal(raw, &mcp) == nil && len(mcp.Content) > 0 {
		var parts []string
		for _, c := range mcp.Content {
			if c.Type == "text" {
				parts = append(parts, c.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), mcp.IsError
		}
	}

	var compact bytes.Buffer
	if json.Compact(&compact, raw) == nil {
		return compact.String(), false
	}
	return string(raw), false
}

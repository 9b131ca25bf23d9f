package harnessports

import (
	"context"
	"encoding/json"
)

// FunctionSpec is a tool declaration in the backend's function-calling
// format.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema object
}

// ToolCall is a model-requested invocation. Args is the raw JSON argument
// object as produced by the model.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Tool is an in-process tool that can be registered next to the remote
// ones served by tool servers.
type Tool interface {
	Name() string
	Description() string
	Schema() []byte
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

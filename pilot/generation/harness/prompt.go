package harness

import (
	"context"
	"fmt"
	"os"
	"strings"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
	"github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/tools"
)

// PromptSource supplies the base system prompt. Its content is opaque to
// the harness.
type PromptSource interface {
	SystemPrompt(ctx context.Context) (string, error)
}

// StaticPrompt is a fixed system prompt.
type StaticPrompt string

func (p StaticPrompt) SystemPrompt(context.Context) (string, error) { return string(p), nil }

// FilePrompt reads the system prompt from a file on every run, so edits
// apply without a restart.
type FilePrompt struct {
	Path     string
	Fallback string
}

func (p FilePrompt) SystemPrompt(context.Context) (string, error) {
	if p.Path == "" {
		return p.Fallback, nil
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return string(data), nil
}

// PromptBuilder assembles model-ready inputs from system text, messages, and tools.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

func norm(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

// System appends an advisory tool list to base. The list is added even
// when tool calling is disabled so the model can still describe what it
// could do.
func (b *PromptBuilder) System(base string, defs []tools.ToolDefinition, toolsEnabled bool) string {
	base = norm(base)
	if len(defs) == 0 {
		return base
	}

	var sb strings.Builder
	if base != "" {
		sb.WriteString(base)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Available tools:\n")
	for _, def := range defs {
		sb.WriteString("- ")
		sb.WriteString(def.Name)
		if desc := norm(def.Description); desc != "" {
			sb.WriteString(": ")
			sb.WriteString(strings.ReplaceAll(desc, "\n", " "))
		}
		sb.WriteByte('\n')
	}
	if !toolsEnabled {
		sb.WriteString("\nTool calling is disabled for this request. Describe the steps instead of calling tools.\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Build flattens system + chat messages into a Provider PromptInput.
func (b *PromptBuilder) Build(system string, messages []ports.PromptMessage, specs []ports.FunctionSpec, meta map[string]string) ports.PromptInput {
	out := make([]ports.PromptMessage, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role != ports.RoleTool {
			out[i].Content = norm(out[i].Content)
		}
	}
	return ports.PromptInput{
		System:   system,
		Messages: out,
		Tools:    specs,
		Meta:     meta,
	}
}

package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
	"github.com/xeipuuv/gojsonschema"
)

// Guardrails vets tool calls before execution and masks secrets in text
// handed back to callers.
type Guardrails struct {
	allowlist     map[string]bool  // empty allows every tool
	outputFilters []*regexp.Regexp // matches are replaced by [REDACTED]
	jsonValidator *JSONValidator
}

// NewGuardrails creates guardrails from an allowlist and redaction
// patterns.
func NewGuardrails(allowed []string, redactPatterns []string) (*Guardrails, error) {
	g := &Guardrails{
		allowlist:     make(map[string]bool),
		jsonValidator: NewJSONValidator(),
	}
	for _, name := range allowed {
		g.AddAllowedTool(name)
	}
	for _, p := range redactPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		g.outputFilters = append(g.outputFilters, re)
	}
	return g, nil
}

// AddAllowedTool adds a tool to the allowlist.
func (g *Guardrails) AddAllowedTool(name string) {
	g.allowlist[name] = true
}

// ValidateToolCall checks that call is allowed and that its arguments
// satisfy the tool's input schema.
func (g *Guardrails) ValidateToolCall(call ports.ToolCall, schema json.RawMessage) error {
	if call.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(g.allowlist) > 0 && !g.allowlist[call.Name] {
		return fmt.Errorf("tool %s is not in allowlist", call.Name)
	}

	args := call.Args
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		return fmt.Errorf("tool arguments are not valid JSON")
	}
	return g.jsonValidator.Validate(args, schema)
}

// SanitizeOutput masks sensitive information in output.
func (g *Guardrails) SanitizeOutput(output string) string {
	sanitized := output
	for _, filter := range g.outputFilters {
		sanitized = filter.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}

// JSONValidator handles JSON schema validation.
type JSONValidator struct{}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// Validate checks if JSON data conforms to a schema. An empty schema
// accepts everything.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if len(bytes.TrimSpace(schema)) == 0 {
		return nil
	}

	if !json.Valid(data) {
		return fmt.Errorf("data is not valid JSON")
	}

	schemaLoader := gojsonschema.NewBytesLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errors []string
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

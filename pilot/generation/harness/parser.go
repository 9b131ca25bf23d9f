package harness

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// OutputParser recovers tool calls that a model wrote into its text
// instead of returning them as structured calls.
type OutputParser struct {
	// each pattern ends right before the arguments value
	toolCallPatterns []*regexp.Regexp
}

// NewOutputParser creates a parser with default patterns for common tool call formats.
func NewOutputParser() *OutputParser {
	return &OutputParser{
		toolCallPatterns: []*regexp.Regexp{
			// {"name": "tool", "arguments": {...}}
			regexp.MustCompile(`\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"arguments"\s*:\s*`),
			// {"function": {"name": "tool", "arguments": "..."}}
			regexp.MustCompile(`"function"\s*:\s*\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"arguments"\s*:\s*`),
			// tool_name({...})
			regexp.MustCompile(`\b([A-Za-z_][\w-]*)\s*\(\s*`),
		},
	}
}

// ParseToolCalls extracts tool calls naming one of the known tools, in
// text order. Each call gets a generated id.
func (p *OutputParser) ParseToolCalls(text string, known map[string]bool) []ports.ToolCall {
	type found struct {
		at   int
		call ports.ToolCall
	}
	var hits []found
	taken := map[int]bool{}

	for _, pattern := range p.toolCallPatterns {
		for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
			name := text[m[2]:m[3]]
			if !known[name] || taken[m[1]] {
				continue
			}
			args, ok := decodeArguments(text[m[1]:])
			if !ok {
				continue
			}
			taken[m[1]] = true
			hits = append(hits, found{at: m[0], call: ports.ToolCall{
				ID:   "call_" + uuid.NewString(),
				Name: name,
				Args: args,
			}})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	calls := make([]ports.ToolCall, len(hits))
	for i, h := range hits {
		calls[i] = h.call
	}
	return calls
}

// decodeArguments reads one JSON value from the start of s: an object, or
// a string holding an object.
func decodeArguments(s string) (json.RawMessage, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&raw); err != nil {
		return nil, false
	}
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, false
	}

	switch raw[0] {
	case '{':
		return raw, true
	case '"':
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, false
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return json.RawMessage(`{}`), true
		}
		if !json.Valid([]byte(inner)) {
			inner = fixJSON(inner)
		}
		if !json.Valid([]byte(inner)) || !strings.HasPrefix(inner, "{") {
			return nil, false
		}
		return json.RawMessage(inner), true
	}
	return nil, false
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// fixJSON attempts to fix common JSON formatting issues.
func fixJSON(jsonStr string) string {
	jsonStr = trailingCommaRe.ReplaceAllString(jsonStr, "$1")
	jsonStr = unquotedKeyRe.ReplaceAllString(jsonStr, `$1"$2":`)
	return strings.ReplaceAll(jsonStr, "'", "\"")
}

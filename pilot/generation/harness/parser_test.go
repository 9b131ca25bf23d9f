package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var knownTools = map[string]bool{"browser_click": true, "browser_type": true}

func TestOutputParser_ParseToolCalls(t *testing.T) {
	parser := NewOutputParser()

	tests := []struct {
		name  string
		text  string
		names []string
		args  []string
	}{
		{
			name:  "json array",
			text:  `[{"name": "browser_click", "arguments": {"ref": "e1"}}]`,
			names: []string{"browser_click"},
			args:  []string{`{"ref": "e1"}`},
		},
		{
			name:  "openai function object with string arguments",
			text:  `{"type":"function","function":{"name":"browser_type","arguments":"{\"text\":\"hi\"}"}}`,
			names: []string{"browser_type"},
			args:  []string{`{"text":"hi"}`},
		},
		{
			name:  "function call syntax",
			text:  `I'll do browser_click({"testId": "go"}) now`,
			names: []string{"browser_click"},
			args:  []string{`{"testId": "go"}`},
		},
		{
			name:  "text order across formats",
			text:  `browser_type({"text": "a"}) then {"name": "browser_click", "arguments": {}}`,
			names: []string{"browser_type", "browser_click"},
			args:  []string{`{"text": "a"}`, `{}`},
		},
		{
			name:  "empty string arguments",
			text:  `{"function": {"name": "browser_click", "arguments": ""}}`,
			names: []string{"browser_click"},
			args:  []string{`{}`},
		},
		{
			name:  "repairs sloppy string arguments",
			text:  `{"function": {"name": "browser_click", "arguments": "{ref: 'e2',}"}}`,
			names: []string{"browser_click"},
			args:  []string{`{"ref": "e2"}`},
		},
		{name: "unknown tool", text: `{"name": "rm_rf", "arguments": {}}`},
		{name: "plain text", text: "Just a normal response"},
		{name: "prose mentioning a tool", text: "use browser_click (carefully)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := parser.ParseToolCalls(tt.text, knownTools)
			require.Len(t, calls, len(tt.names))
			for i, call := range calls {
				assert.Equal(t, tt.names[i], call.Name)
				assert.JSONEq(t, tt.args[i], string(call.Args))
				assert.Contains(t, call.ID, "call_")
			}
		})
	}
}

// Package codegen turns executed browser tool calls into Playwright for
// Python statements. Code echoed by the tool server is translated when
// present; otherwise statements are built from the call arguments.
package codegen

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// Call is one resolved tool invocation.
type Call struct {
	Tool   string
	Args   json.RawMessage
	Result string // raw result text
	Failed bool
}

// fencedBlockRe matches fenced JavaScript or TypeScript blocks.
var fencedBlockRe = regexp.MustCompile("(?s)```(?:js|javascript|ts|typescript)[^\\n]*\\n(.*?)```")

// Synthesizer produces target code for tool calls. Block translations are
// memoized through an optional cache.
type Synthesizer struct {
	cache  ports.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewSynthesizer creates a synthesizer. cache may be nil.
func NewSynthesizer(cache ports.Cache, ttl time.Duration, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "codegen").Logger(),
	}
}

// Synthesize returns the statements reproducing call, newline separated.
// It never fails: inspection and unknown tools yield a comment, failed
// calls yield their statements commented out.
func (s *Synthesizer) Synthesize(ctx context.Context, call Call) string {
	if inspectionTools[call.Tool] {
		return "# " + ActionLabel(call.Tool) + ": inspection only, not replayed"
	}

	var lines []string
	if !call.Failed {
		for _, block := range ExtractBlocks(call.Result) {
			lines = append(lines, s.translate(ctx, block)...)
		}
	}

	if len(lines) == 0 {
		build, ok := builders[call.Tool]
		if !ok {
			return "# " + call.Tool + ": no browser action to record"
		}
		lines = build(decodeArgs(call.Args))
	}

	if call.Failed {
		lines = commentOut(lines)
	}
	return strings.Join(lines, "\n")
}

func (s *Synthesizer) translate(ctx context.Context, block string) []string {
	if s.cache == nil {
		return Translate(block)
	}

	sum := blake3.Sum256([]byte(block))
	key := "codegen:" + hex.EncodeToString(sum[:])
	if cached, ok := s.cache.Get(ctx, key); ok {
		return strings.Split(string(cached), "\n")
	}

	lines := Translate(block)
	if len(lines) == 0 {
		return nil
	}
	if err := s.cache.Set(ctx, key, []byte(strings.Join(lines, "\n")), s.ttl); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to cache translation")
	}
	return lines
}

// ExtractBlocks returns the bodies of the fenced JavaScript blocks in text.
func ExtractBlocks(text string) []string {
	matches := fencedBlockRe.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		if body := strings.TrimSpace(m[1]); body != "" {
			blocks = append(blocks, body)
		}
	}
	return blocks
}

// ActionLabel derives a human label from a tool name: browser_fill_form
// becomes "fill form".
func ActionLabel(tool string) string {
	return strings.ReplaceAll(strings.TrimPrefix(tool, "browser_"), "_", " ")
}

// valueKeys are the argument keys carrying the value each action applies.
// Every other key stays available to the locator, so browser_click with
// a text argument still locates by text.
var valueKeys = map[string][]string{
	"browser_navigate":            {"url"},
	"browser_type":                {"text"},
	"browser_fill_form":           {"value"},
	"browser_select_option":       {"values", "value"},
	"browser_press_key":           {"key"},
	"browser_file_upload":         {"paths"},
	"browser_wait_for":            {"text", "textGone"},
	"browser_handle_dialog":       {"promptText"},
	"browser_evaluate":            {"function", "expression"},
	"browser_verify_text_visible": {"text"},
	"browser_verify_value":        {"value"},
}

// StepDetails extracts the element locator and applied value of a call for
// display. Either may be empty.
func StepDetails(tool string, args json.RawMessage) (locator, value string) {
	decoded := decodeArgs(args)
	keys := valueKeys[tool]

	for _, k := range keys {
		if list := stringList(decoded[k]); len(list) > 0 {
			value = strings.Join(list, ", ")
			break
		}
		if v, ok := decoded[k]; ok {
			value = scalarString(v)
			break
		}
	}

	if _, isBuilt := builders[tool]; !isBuilt || inspectionTools[tool] {
		return "", value
	}
	target := without(decoded, keys...)
	for _, step := range locatorChain {
		if expr, ok := step.resolve(target); ok {
			return expr, value
		}
	}
	if desc, ok := firstString(target, "element"); ok {
		return desc, value
	}
	return "", value
}

// RenderScript wraps statements into a pytest-playwright test function.
func RenderScript(name string, statements []string) string {
	var b strings.Builder
	b.WriteString("import re\n\nfrom playwright.sync_api import Page, expect\n\n\n")
	b.WriteString("def test_" + testName(name) + "(page: Page) -> None:\n")

	wrote := false
	for _, stmt := range statements {
		for _, line := range strings.Split(stmt, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteString("    " + line + "\n")
			wrote = true
		}
	}
	if !wrote {
		b.WriteString("    pass\n")
	}
	return b.String()
}

var nonIdentRe = regexp.MustCompile(`[^a-z0-9]+`)

func testName(name string) string {
	n := strings.Trim(nonIdentRe.ReplaceAllString(strings.ToLower(snakeCase(name)), "_"), "_")
	if n == "" {
		return "recorded"
	}
	return n
}

func decodeArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args
}

func commentOut(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			out[i] = line
			continue
		}
		out[i] = "# " + line
	}
	return out
}

package codegen

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	hits int
	sets int
}

func newCountingCache() *countingCache { return &countingCache{data: map[string][]byte{}} }

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *countingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[key] = value
	return nil
}

func (c *countingCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func synthesize(t *testing.T, call Call) string {
	t.Helper()
	return NewSynthesizer(nil, 0, zerolog.Nop()).Synthesize(context.Background(), call)
}

func TestSynthesizeClickByTestID(t *testing.T) {
	code := synthesize(t, Call{
		Tool: "browser_click",
		Args: json.RawMessage(`{"testId":"submit-btn","element":"Submit button","ref":"e7"}`),
	})
	assert.Equal(t, `page.get_by_test_id("submit-btn").click()`, code)
}

func TestSynthesizeFillByPlaceholder(t *testing.T) {
	code := synthesize(t, Call{
		Tool: "browser_fill_form",
		Args: json.RawMessage(`{"placeholder":"Email"}`),
	})
	assert.Equal(t, `page.get_by_placeholder("Email").fill("")`, code)

	code = synthesize(t, Call{
		Tool: "browser_fill_form",
		Args: json.RawMessage(`{"placeholder":"Email","value":"qa@example.com"}`),
	})
	assert.Equal(t, `page.get_by_placeholder("Email").fill("qa@example.com")`, code)
}

func TestSynthesizeFillFormFields(t *testing.T) {
	code := synthesize(t, Call{
		Tool: "browser_fill_form",
		Args: json.RawMessage(`{"fields":[
			{"name":"Email","type":"textbox","ref":"e3","value":"qa@example.com"},
			{"name":"Remember me","type":"checkbox","label":"Remember me","value":"true"},
			{"name":"Country","type":"combobox","ref":"e9","value":"Norway"}
		]}`),
	})
	assert.Equal(t,
		`page.locator("aria-ref=e3").fill("qa@example.com")`+"\n"+
			`page.get_by_label("Remember me").set_checked(True)`+"\n"+
			`page.locator("aria-ref=e9").select_option("Norway")`,
		code)
}

func TestSynthesizeFallbackActions(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args string
		want string
	}{
		{"navigate", "browser_navigate", `{"url":"https://shop.test/?q=\"a\""}`, `page.goto("https://shop.test/?q=\"a\"")`},
		{"back", "browser_navigate_back", `{}`, `page.go_back()`},
		{"double click", "browser_click", `{"role":"row","name":"Order 42","doubleClick":true}`, `page.get_by_role("row", name="Order 42").dblclick()`},
		{"right click", "browser_click", `{"label":"Menu","button":"right"}`, `page.get_by_label("Menu").click(button="right")`},
		{"best effort", "browser_click", `{"element":"Login"}`, `page.get_by_text(re.compile("Login", re.IGNORECASE)).click()  # TODO: verify locator`},
		{"type and submit", "browser_type", `{"ref":"e5","text":"shoes","submit":true}`, "page.locator(\"aria-ref=e5\").fill(\"shoes\")\npage.locator(\"aria-ref=e5\").press(\"Enter\")"},
		{"type slowly", "browser_type", `{"placeholder":"Search","text":"x","slowly":true}`, `page.get_by_placeholder("Search").press_sequentially("x")`},
		{"select many", "browser_select_option", `{"label":"Sizes","values":["S","M"]}`, `page.get_by_label("Sizes").select_option(["S", "M"])`},
		{"press key", "browser_press_key", `{"key":"Escape"}`, `page.keyboard.press("Escape")`},
		{"drag", "browser_drag", `{"startRef":"e1","startElement":"Card","endTestId":"done-column"}`, `page.locator("aria-ref=e1").drag_to(page.get_by_test_id("done-column"))`},
		{"upload", "browser_file_upload", `{"paths":["/tmp/a.pdf"]}`, `page.locator("input[type=file]").set_input_files(["/tmp/a.pdf"])  # TODO: verify locator`},
		{"wait", "browser_wait_for", `{"time":1.5,"textGone":"Loading"}`, "page.wait_for_timeout(1500)\npage.get_by_text(\"Loading\").first.wait_for(state=\"hidden\")"},
		{"dialog", "browser_handle_dialog", `{"accept":true,"promptText":"yes"}`, `page.once("dialog", lambda dialog: dialog.accept("yes"))`},
		{"resize", "browser_resize", `{"width":1280,"height":720}`, `page.set_viewport_size({"width": 1280, "height": 720})`},
		{"new tab", "browser_tabs", `{"action":"new"}`, `page = page.context.new_page()`},
		{"list tabs", "browser_tabs", `{"action":"list"}`, `# tabs: inspection only, not replayed`},
		{"verify text", "browser_verify_text_visible", `{"text":"Welcome"}`, `expect(page.get_by_text("Welcome")).to_be_visible()`},
		{"verify value", "browser_verify_value", `{"ref":"e4","type":"textbox","value":"42"}`, `expect(page.locator("aria-ref=e4")).to_have_value("42")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, synthesize(t, Call{Tool: tt.tool, Args: json.RawMessage(tt.args)}))
		})
	}
}

func TestSynthesizePrefersEchoedCode(t *testing.T) {
	result := "### Ran Playwright code\n```js\n" +
		"await page.getByRole('button', { name: 'Submit' }).click();\n" +
		"```\n\n### Page state\n- Page URL: https://shop.test/checkout\n"

	code := synthesize(t, Call{
		Tool:   "browser_click",
		Args:   json.RawMessage(`{"testId":"submit-btn"}`),
		Result: result,
	})
	assert.Equal(t, `page.get_by_role("button", name="Submit").click()`, code)
}

func TestSynthesizeCommentsForNonActions(t *testing.T) {
	assert.Equal(t, "# snapshot: inspection only, not replayed",
		synthesize(t, Call{Tool: "browser_snapshot", Result: "```js\nawait page.accessibility.snapshot();\n```"}))
	assert.Equal(t, "# take screenshot: inspection only, not replayed",
		synthesize(t, Call{Tool: "browser_take_screenshot"}))
	assert.Equal(t, "# fixture_files: no browser action to record",
		synthesize(t, Call{Tool: "fixture_files", Args: json.RawMessage(`{"path":""}`)}))
}

func TestSynthesizeFailedCallIsCommentedOut(t *testing.T) {
	code := synthesize(t, Call{
		Tool:   "browser_type",
		Args:   json.RawMessage(`{"testId":"q","text":"x","submit":true}`),
		Result: "Error: element not found",
		Failed: true,
	})
	assert.Equal(t, "# page.get_by_test_id(\"q\").fill(\"x\")\n# page.get_by_test_id(\"q\").press(\"Enter\")", code)
}

func TestSynthesizeToleratesBadArgs(t *testing.T) {
	assert.Equal(t, `page.locator(":focus").hover()  # TODO: verify locator`,
		synthesize(t, Call{Tool: "browser_hover", Args: json.RawMessage(`not json`)}))
	assert.Equal(t, "# navigate: no url given",
		synthesize(t, Call{Tool: "browser_navigate", Args: json.RawMessage(`null`)}))
}

func TestSynthesizeMemoizesTranslations(t *testing.T) {
	cache := newCountingCache()
	s := NewSynthesizer(cache, time.Minute, zerolog.Nop())
	call := Call{Tool: "browser_navigate", Result: "```js\nawait page.goto('https://shop.test/');\n```"}

	first := s.Synthesize(context.Background(), call)
	second := s.Synthesize(context.Background(), call)

	assert.Equal(t, `page.goto("https://shop.test/")`, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 1, cache.hits)
}

func TestExtractBlocks(t *testing.T) {
	text := "before\n```js\nawait page.goto('a');\n```\nmiddle\n```python\nignored\n```\n```ts\nawait page.goBack();\n```"
	assert.Equal(t, []string{"await page.goto('a');", "await page.goBack();"}, ExtractBlocks(text))
	assert.Empty(t, ExtractBlocks("no code here"))
}

func TestActionLabel(t *testing.T) {
	assert.Equal(t, "fill form", ActionLabel("browser_fill_form"))
	assert.Equal(t, "navigate", ActionLabel("browser_navigate"))
	assert.Equal(t, "fixture files", ActionLabel("fixture_files"))
}

func TestStepDetails(t *testing.T) {
	loc, value := StepDetails("browser_type", json.RawMessage(`{"ref":"e5","element":"Search","text":"shoes"}`))
	assert.Equal(t, `page.locator("aria-ref=e5")`, loc)
	assert.Equal(t, "shoes", value)

	loc, value = StepDetails("browser_select_option", json.RawMessage(`{"label":"Size","values":["S","M"]}`))
	assert.Equal(t, `page.get_by_label("Size")`, loc)
	assert.Equal(t, "S, M", value)

	loc, value = StepDetails("browser_click", json.RawMessage(`{"element":"Login"}`))
	assert.Equal(t, "Login", loc)
	assert.Empty(t, value)

	loc, value = StepDetails("browser_navigate", json.RawMessage(`{"url":"https://shop.test"}`))
	assert.Empty(t, loc)
	assert.Equal(t, "https://shop.test", value)

	loc, _ = StepDetails("browser_snapshot", nil)
	assert.Empty(t, loc)
}

func TestStepDetailsMatchesSynthesizedLocator(t *testing.T) {
	args := json.RawMessage(`{"text":"Submit"}`)

	loc, value := StepDetails("browser_click", args)
	assert.Equal(t, `page.get_by_text("Submit")`, loc)
	assert.Empty(t, value)

	code := NewSynthesizer(nil, 0, zerolog.Nop()).Synthesize(context.Background(), Call{Tool: "browser_click", Args: args})
	assert.Equal(t, loc+".click()", code)

	loc, value = StepDetails("browser_wait_for", json.RawMessage(`{"text":"Done"}`))
	assert.Empty(t, loc)
	assert.Equal(t, "Done", value)
}

func TestRenderScript(t *testing.T) {
	script := RenderScript("Checkout flow", []string{
		`page.goto("https://shop.test/")`,
		"page.get_by_test_id(\"cart\").click()\n# page.get_by_text(\"Pay\").click()",
	})

	want := "import re\n\nfrom playwright.sync_api import Page, expect\n\n\n" +
		"def test_checkout_flow(page: Page) -> None:\n" +
		"    page.goto(\"https://shop.test/\")\n" +
		"    page.get_by_test_id(\"cart\").click()\n" +
		"    # page.get_by_text(\"Pay\").click()\n"
	assert.Equal(t, want, script)

	require.Contains(t, RenderScript("", nil), "def test_recorded(page: Page) -> None:\n    pass\n")
}

func TestResolveLocatorPriority(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		expr     string
		strategy string
	}{
		{"test id wins", map[string]any{"testId": "save", "role": "button", "name": "Save", "text": "Save"}, `page.get_by_test_id("save")`, StrategyTestID},
		{"role and name", map[string]any{"role": "button", "name": "Save", "label": "Save"}, `page.get_by_role("button", name="Save")`, StrategyRole},
		{"label", map[string]any{"label": "Password", "placeholder": "secret"}, `page.get_by_label("Password")`, StrategyLabel},
		{"placeholder", map[string]any{"placeholder": "Email", "text": "Email"}, `page.get_by_placeholder("Email")`, StrategyPlaceholder},
		{"text", map[string]any{"text": "Sign in", "selector": "#login"}, `page.get_by_text("Sign in")`, StrategyText},
		{"selector", map[string]any{"selector": "#login", "ref": "e3"}, `page.locator("#login")`, StrategySelector},
		{"ref", map[string]any{"ref": "e3", "element": "Login"}, `page.locator("aria-ref=e3")`, StrategyRef},
		{"best effort", map[string]any{"element": "Log in (primary)"}, `page.get_by_text(re.compile("Log\\ in\\ \\(primary\\)", re.IGNORECASE))`, StrategyBestEffort},
		{"nothing", map[string]any{}, `page.locator(":focus")`, StrategyBestEffort},
		{"blank values skipped", map[string]any{"testId": "  ", "label": "Name"}, `page.get_by_label("Name")`, StrategyLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := ResolveLocator(tt.args)
			assert.Equal(t, tt.expr, loc.Expr)
			assert.Equal(t, tt.strategy, loc.Strategy)
			assert.Equal(t, tt.strategy == StrategyBestEffort, loc.Unverified())
		})
	}
}

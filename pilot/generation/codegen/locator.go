package codegen

import (
	"fmt"
	"strings"
)

// Locator strategies, most durable first.
const (
	StrategyTestID      = "test_id"
	StrategyRole        = "role"
	StrategyLabel       = "label"
	StrategyPlaceholder = "placeholder"
	StrategyText        = "text"
	StrategySelector    = "selector"
	StrategyRef         = "ref"
	StrategyBestEffort  = "best_effort"
)

// UnverifiedMarker is appended to statements built on a best-effort locator.
const UnverifiedMarker = "  # TODO: verify locator"

// Locator is a resolved element locator expression.
type Locator struct {
	Expr     string // e.g. page.get_by_test_id("submit")
	Strategy string
}

// Unverified reports whether the locator is a guess.
func (l Locator) Unverified() bool { return l.Strategy == StrategyBestEffort }

type locatorStep struct {
	strategy string
	resolve  func(args map[string]any) (string, bool)
}

// locatorChain is tried in order; the first strategy whose arguments are
// present wins.
var locatorChain = []locatorStep{
	{StrategyTestID, func(a map[string]any) (string, bool) {
		v, ok := firstString(a, "testId", "test_id", "dataTestId", "data-testid")
		return "page.get_by_test_id(" + PyString(v) + ")", ok
	}},
	{StrategyRole, func(a map[string]any) (string, bool) {
		role, ok := firstString(a, "role")
		if !ok {
			return "", false
		}
		if name, ok := firstString(a, "name", "accessibleName"); ok {
			return fmt.Sprintf("page.get_by_role(%s, name=%s)", PyString(role), PyString(name)), true
		}
		return "page.get_by_role(" + PyString(role) + ")", true
	}},
	{StrategyLabel, func(a map[string]any) (string, bool) {
		v, ok := firstString(a, "label")
		return "page.get_by_label(" + PyString(v) + ")", ok
	}},
	{StrategyPlaceholder, func(a map[string]any) (string, bool) {
		v, ok := firstString(a, "placeholder")
		return "page.get_by_placeholder(" + PyString(v) + ")", ok
	}},
	{StrategyText, func(a map[string]any) (string, bool) {
		v, ok := firstString(a, "text")
		return "page.get_by_text(" + PyString(v) + ")", ok
	}},
	{StrategySelector, func(a map[string]any) (string, bool) {
		v, ok := firstString(a, "selector", "css")
		return "page.locator(" + PyString(v) + ")", ok
	}},
	{StrategyRef, func(a map[string]any) (string, bool) {
		v, ok := firstString(a, "ref")
		return "page.locator(" + PyString("aria-ref="+v) + ")", ok
	}},
}

// ResolveLocator picks the most durable locator the arguments support.
// It always succeeds: without usable arguments it falls back to a
// case-insensitive text match on the element description.
func ResolveLocator(args map[string]any) Locator {
	for _, step := range locatorChain {
		if expr, ok := step.resolve(args); ok {
			return Locator{Expr: expr, Strategy: step.strategy}
		}
	}

	desc, ok := firstString(args, "element", "name", "description")
	if !ok {
		return Locator{Expr: `page.locator(":focus")`, Strategy: StrategyBestEffort}
	}
	return Locator{
		Expr:     "page.get_by_text(re.compile(" + PyString(RegexEscape(desc)) + ", re.IGNORECASE))",
		Strategy: StrategyBestEffort,
	}
}

// firstString returns the first non-blank string value among keys.
func firstString(args map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// without returns a shallow copy of args minus keys.
func without(args map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// prefixed extracts the arguments of one side of a two-element action,
// e.g. startRef/startElement become ref/element.
func prefixed(args map[string]any, prefix string) map[string]any {
	out := map[string]any{}
	for k, v := range args {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			out[strings.ToLower(rest[:1])+rest[1:]] = v
		}
	}
	return out
}

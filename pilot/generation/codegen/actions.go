package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

// builder turns decoded tool arguments into target statements.
type builder func(args map[string]any) []string

// inspectionTools read page state without changing it and have no
// replayable statement.
var inspectionTools = map[string]bool{
	"browser_snapshot":            true,
	"browser_take_screenshot":     true,
	"browser_console_messages":    true,
	"browser_network_requests":    true,
	"browser_generate_locator":    true,
	"browser_install":             true,
	"browser_pdf_save":            true,
	"browser_verify_list_visible": true,
}

var builders = map[string]builder{
	"browser_navigate": func(a map[string]any) []string {
		url, ok := firstString(a, "url")
		if !ok {
			return []string{"# navigate: no url given"}
		}
		return []string{"page.goto(" + PyString(url) + ")"}
	},
	"browser_navigate_back":    fixed("page.go_back()"),
	"browser_navigate_forward": fixed("page.go_forward()"),
	"browser_reload":           fixed("page.reload()"),
	"browser_close":            fixed("page.close()"),

	"browser_click": func(a map[string]any) []string {
		loc := ResolveLocator(a)
		var kwargs []string
		if b, ok := firstString(a, "button"); ok && b != "left" {
			kwargs = append(kwargs, "button="+PyString(b))
		}
		if mods := stringList(a["modifiers"]); len(mods) > 0 {
			kwargs = append(kwargs, "modifiers="+pyList(mods))
		}
		method := "click"
		if boolArg(a, "doubleClick") {
			method = "dblclick"
		}
		return []string{act(loc, method+"("+strings.Join(kwargs, ", ")+")")}
	},
	"browser_hover": func(a map[string]any) []string {
		return []string{act(ResolveLocator(a), "hover()")}
	},
	"browser_type": func(a map[string]any) []string {
		text, _ := firstString(a, "text")
		loc := ResolveLocator(without(a, "text"))
		method := "fill"
		if boolArg(a, "slowly") {
			method = "press_sequentially"
		}
		lines := []string{act(loc, method+"("+PyString(text)+")")}
		if boolArg(a, "submit") {
			lines = append(lines, act(loc, `press("Enter")`))
		}
		return lines
	},
	"browser_fill_form": fillForm,
	"browser_select_option": func(a map[string]any) []string {
		loc := ResolveLocator(without(a, "values", "value"))
		values := stringList(a["values"])
		if v, ok := firstString(a, "value"); ok && len(values) == 0 {
			values = []string{v}
		}
		arg := pyList(values)
		if len(values) == 1 {
			arg = PyString(values[0])
		}
		return []string{act(loc, "select_option("+arg+")")}
	},
	"browser_press_key": func(a map[string]any) []string {
		key, ok := firstString(a, "key")
		if !ok {
			return []string{"# press key: no key given"}
		}
		return []string{"page.keyboard.press(" + PyString(key) + ")"}
	},
	"browser_drag": func(a map[string]any) []string {
		src := ResolveLocator(prefixed(a, "start"))
		dst := ResolveLocator(prefixed(a, "end"))
		line := src.Expr + ".drag_to(" + dst.Expr + ")"
		if src.Unverified() || dst.Unverified() {
			line += UnverifiedMarker
		}
		return []string{line}
	},
	"browser_file_upload": func(a map[string]any) []string {
		loc := ResolveLocator(without(a, "paths"))
		if loc.Unverified() {
			loc = Locator{Expr: `page.locator("input[type=file]")`, Strategy: StrategyBestEffort}
		}
		return []string{act(loc, "set_input_files("+pyList(stringList(a["paths"]))+")")}
	},
	"browser_wait_for": func(a map[string]any) []string {
		var lines []string
		if secs, ok := a["time"].(float64); ok {
			lines = append(lines, "page.wait_for_timeout("+pyNumber(secs*1000)+")")
		}
		if text, ok := firstString(a, "text"); ok {
			lines = append(lines, "page.get_by_text("+PyString(text)+").first.wait_for()")
		}
		if gone, ok := firstString(a, "textGone"); ok {
			lines = append(lines, "page.get_by_text("+PyString(gone)+`).first.wait_for(state="hidden")`)
		}
		if len(lines) == 0 {
			return []string{`page.wait_for_load_state("networkidle")`}
		}
		return lines
	},
	"browser_handle_dialog": func(a map[string]any) []string {
		handler := "dialog.dismiss()"
		if boolArg(a, "accept") {
			handler = "dialog.accept()"
			if text, ok := firstString(a, "promptText"); ok {
				handler = "dialog.accept(" + PyString(text) + ")"
			}
		}
		return []string{`page.once("dialog", lambda dialog: ` + handler + ")"}
	},
	"browser_evaluate": func(a map[string]any) []string {
		fn, ok := firstString(a, "function", "expression")
		if !ok {
			return []string{"# evaluate: no function given"}
		}
		target := without(a, "function", "expression")
		if _, hasRef := firstString(target, "ref", "element"); hasRef {
			return []string{act(ResolveLocator(target), "evaluate("+PyString(fn)+")")}
		}
		return []string{"page.evaluate(" + PyString(fn) + ")"}
	},
	"browser_resize": func(a map[string]any) []string {
		w, _ := a["width"].(float64)
		h, _ := a["height"].(float64)
		return []string{fmt.Sprintf(`page.set_viewport_size({"width": %s, "height": %s})`, pyNumber(w), pyNumber(h))}
	},
	"browser_tabs": func(a map[string]any) []string {
		action, _ := firstString(a, "action")
		index, hasIndex := a["index"].(float64)
		switch action {
		case "new":
			return []string{"page = page.context.new_page()"}
		case "select":
			return []string{"page = page.context.pages[" + pyNumber(index) + "]"}
		case "close":
			if hasIndex {
				return []string{"page.context.pages[" + pyNumber(index) + "].close()"}
			}
			return []string{"page.close()"}
		}
		return []string{"# tabs: inspection only, not replayed"}
	},
	"browser_mouse_click_xy": func(a map[string]any) []string {
		x, _ := a["x"].(float64)
		y, _ := a["y"].(float64)
		return []string{"page.mouse.click(" + pyNumber(x) + ", " + pyNumber(y) + ")"}
	},
	"browser_mouse_move_xy": func(a map[string]any) []string {
		x, _ := a["x"].(float64)
		y, _ := a["y"].(float64)
		return []string{"page.mouse.move(" + pyNumber(x) + ", " + pyNumber(y) + ")"}
	},
	"browser_verify_text_visible": func(a map[string]any) []string {
		text, _ := firstString(a, "text")
		return []string{"expect(page.get_by_text(" + PyString(text) + ")).to_be_visible()"}
	},
	"browser_verify_element_visible": func(a map[string]any) []string {
		loc := ResolveLocator(a)
		return []string{withMarker(loc, "expect("+loc.Expr+").to_be_visible()")}
	},
	"browser_verify_value": func(a map[string]any) []string {
		loc := ResolveLocator(without(a, "value", "type"))
		typ, _ := firstString(a, "type")
		value := scalarString(a["value"])
		switch typ {
		case "checkbox", "radio":
			if value == "true" {
				return []string{withMarker(loc, "expect("+loc.Expr+").to_be_checked()")}
			}
			return []string{withMarker(loc, "expect("+loc.Expr+").not_to_be_checked()")}
		}
		return []string{withMarker(loc, "expect("+loc.Expr+").to_have_value("+PyString(value)+")")}
	},
}

// fillForm handles both the multi-field form shape and a single field
// described by top-level arguments.
func fillForm(a map[string]any) []string {
	fields, ok := a["fields"].([]any)
	if !ok {
		return []string{fillField(a)}
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if field, ok := f.(map[string]any); ok {
			lines = append(lines, fillField(field))
		}
	}
	if len(lines) == 0 {
		return []string{"# fill form: no fields given"}
	}
	return lines
}

func fillField(field map[string]any) string {
	loc := ResolveLocator(without(field, "value", "type"))
	value := scalarString(field["value"])
	typ, _ := firstString(field, "type")
	switch typ {
	case "checkbox":
		checked := "False"
		if value == "true" {
			checked = "True"
		}
		return act(loc, "set_checked("+checked+")")
	case "radio":
		return act(loc, "check()")
	case "combobox":
		return act(loc, "select_option("+PyString(value)+")")
	}
	return act(loc, "fill("+PyString(value)+")")
}

func fixed(stmt string) builder {
	return func(map[string]any) []string { return []string{stmt} }
}

// act applies call to loc, flagging guessed locators.
func act(loc Locator, call string) string {
	return withMarker(loc, loc.Expr+"."+call)
}

func withMarker(loc Locator, stmt string) string {
	if loc.Unverified() {
		return stmt + UnverifiedMarker
	}
	return stmt
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, scalarString(item))
	}
	return out
}

func pyList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = PyString(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func pyNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

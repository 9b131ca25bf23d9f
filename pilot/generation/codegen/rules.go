package codegen

import (
	"regexp"
	"strings"
)

// rule is one tagged rewrite of the source-to-target translation table.
// Rules see placeholder-substituted code only, never literal contents.
type rule struct {
	tag     string
	pattern *regexp.Regexp
	rewrite func(groups []string) string
}

func (r rule) apply(code string) string {
	matches := r.pattern.FindAllStringSubmatchIndex(code, -1)
	if matches == nil {
		return code
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		groups := make([]string, len(m)/2)
		for g := range groups {
			if m[2*g] >= 0 {
				groups[g] = code[m[2*g]:m[2*g+1]]
			}
		}
		b.WriteString(code[last:m[0]])
		b.WriteString(r.rewrite(groups))
		last = m[1]
	}
	b.WriteString(code[last:])
	return b.String()
}

func drop([]string) string { return "" }

// snakeMethod renders group 1 as a snake_case method call.
func snakeMethod(g []string) string { return "." + snakeCase(g[1]) + "(" }

var pythonKeywordMethods = map[string]string{"and": "and_", "or": "or_"}

var identifierRe = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)

// rules run in order; later rules may rely on the output of earlier ones.
var rules = []rule{
	{
		tag:     "async",
		pattern: regexp.MustCompile(`\b(?:await|async)\s+`),
		rewrite: drop,
	},
	{
		tag:     "declaration",
		pattern: regexp.MustCompile(`^\s*(?:const|let|var)\s+`),
		rewrite: drop,
	},
	{
		tag:     "arrow",
		pattern: regexp.MustCompile(`(?:\(\s*(\w*)\s*\)|\b(\w+))\s*=>\s*`),
		rewrite: func(g []string) string {
			param := g[1] + g[2]
			if param == "" {
				return "lambda: "
			}
			return "lambda " + param + ": "
		},
	},
	{
		tag:     "position",
		pattern: regexp.MustCompile(`\.(first|last)\(\)`),
		rewrite: func(g []string) string { return "." + g[1] },
	},
	{
		tag:     "negated-assertion",
		pattern: regexp.MustCompile(`\.not\.(to[A-Z]\w*)\(`),
		rewrite: func(g []string) string { return ".not_" + snakeCase(g[1]) + "(" },
	},
	{
		tag:     "locator",
		pattern: regexp.MustCompile(`\.(getBy(?:Role|Text|Label|Placeholder|TestId|AltText|Title)|frameLocator|contentFrame|and|or)\(`),
		rewrite: func(g []string) string {
			if name, ok := pythonKeywordMethods[g[1]]; ok {
				return "." + name + "("
			}
			return snakeMethod(g)
		},
	},
	{
		tag:     "action",
		pattern: regexp.MustCompile(`\.(pressSequentially|selectOption|setInputFiles|setChecked|dragTo|scrollIntoViewIfNeeded|dispatchEvent|waitFor|selectText|inputValue|textContent|innerText)\(`),
		rewrite: snakeMethod,
	},
	{
		tag:     "navigation",
		pattern: regexp.MustCompile(`\.(goBack|goForward|waitForURL|waitForLoadState|waitForTimeout|waitForSelector|setViewportSize|bringToFront|newPage)\(`),
		rewrite: snakeMethod,
	},
	{
		tag:     "keyboard",
		pattern: regexp.MustCompile(`\.(keyboard|mouse)\.(\w+)\(`),
		rewrite: func(g []string) string { return "." + g[1] + "." + snakeCase(g[2]) + "(" },
	},
	{
		tag:     "assertion",
		pattern: regexp.MustCompile(`\.(to(?:Be|Have|Contain|Match)\w*)\(`),
		rewrite: snakeMethod,
	},
	{
		tag:     "method",
		pattern: regexp.MustCompile(`\.([a-z]\w*[A-Z]\w*)\(`),
		rewrite: snakeMethod,
	},
	{
		tag:     "dict-argument",
		pattern: regexp.MustCompile(`\.(set_viewport_size|set_extra_http_headers)\(\s*\{([^{}]*)\}\s*\)`),
		rewrite: func(g []string) string {
			dict, ok := pyDict(g[2])
			if !ok {
				return g[0]
			}
			return "." + g[1] + "(" + dict + ")"
		},
	},
	{
		tag:     "options",
		pattern: regexp.MustCompile(`([(,])\s*\{([^{}]*)\}(\s*\))`),
		rewrite: func(g []string) string {
			kwargs, ok := pyKwargs(g[2])
			if !ok {
				return g[0]
			}
			if kwargs == "" {
				if g[1] == "(" {
					return "(" + g[3]
				}
				return g[3]
			}
			if g[1] == "," {
				return ", " + kwargs + g[3]
			}
			return "(" + kwargs + g[3]
		},
	},
	{
		tag:     "literal",
		pattern: regexp.MustCompile(`\b(true|false|null|undefined)\b`),
		rewrite: func(g []string) string {
			switch g[1] {
			case "true":
				return "True"
			case "false":
				return "False"
			}
			return "None"
		},
	},
	{
		tag:     "terminator",
		pattern: regexp.MustCompile(`\s*;\s*$`),
		rewrite: drop,
	},
}

// Translate rewrites a block of Playwright JavaScript into Playwright for
// Python statements, one per non-empty source line.
func Translate(source string) []string {
	var out []string
	for _, line := range strings.Split(source, "\n") {
		if stmt := translateLine(line); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func translateLine(line string) string {
	code, lits, comment := lex(line)
	for _, r := range rules {
		code = r.apply(code)
	}
	stmt := strings.TrimSpace(restore(code, lits))

	switch {
	case comment == "":
		return stmt
	case stmt == "":
		return "# " + comment
	}
	return stmt + "  # " + comment
}

// objectPairs splits the body of an object literal into key/value pairs.
func objectPairs(body string) ([][2]string, bool) {
	var pairs [][2]string
	for _, part := range splitTopLevel(body) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, false
		}
		pairs = append(pairs, [2]string{strings.TrimSpace(key), strings.TrimSpace(value)})
	}
	return pairs, true
}

// pyKwargs renders an options object as keyword arguments.
func pyKwargs(body string) (string, bool) {
	pairs, ok := objectPairs(body)
	if !ok {
		return "", false
	}
	args := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if !identifierRe.MatchString(p[0]) {
			return "", false
		}
		args = append(args, snakeCase(p[0])+"="+p[1])
	}
	return strings.Join(args, ", "), true
}

// pyDict renders an object literal as a dict literal.
func pyDict(body string) (string, bool) {
	pairs, ok := objectPairs(body)
	if !ok {
		return "", false
	}
	entries := make([]string, 0, len(pairs))
	for _, p := range pairs {
		key := p[0]
		if identifierRe.MatchString(key) {
			key = PyString(key)
		}
		entries = append(entries, key+": "+p[1])
	}
	return "{" + strings.Join(entries, ", ") + "}", true
}

// splitTopLevel splits on commas outside brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

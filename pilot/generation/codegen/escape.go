package codegen

import (
	"fmt"
	"strings"
)

// PyString renders s as a double-quoted Python string literal.
func PyString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\x%02x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// regexSpecial matches the characters Python's re.escape escapes.
const regexSpecial = "()[]{}?*+-|^$\\.&~# \t\n\r\v\f"

// RegexEscape escapes every regex metacharacter in s so the pattern
// matches s literally.
func RegexEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(regexSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RegexLiteral renders a re.compile call for a pattern already in regex
// syntax. flags uses JavaScript flag letters.
func RegexLiteral(pattern, flags string) string {
	var names []string
	for _, f := range flags {
		switch f {
		case 'i':
			names = append(names, "re.IGNORECASE")
		case 'm':
			names = append(names, "re.MULTILINE")
		case 's':
			names = append(names, "re.DOTALL")
		}
	}
	if len(names) == 0 {
		return "re.compile(" + PyString(pattern) + ")"
	}
	return "re.compile(" + PyString(pattern) + ", " + strings.Join(names, " | ") + ")"
}

// snakeCase converts a camelCase identifier, keeping acronym runs
// together: toHaveURL becomes to_have_url.
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z' || runes[i-1] >= '0' && runes[i-1] <= '9'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			prevUpper := runes[i-1] >= 'A' && runes[i-1] <= 'Z'
			if prevLower || (prevUpper && nextLower) {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

package codegen

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

type literalKind int

const (
	stringLiteral literalKind = iota
	regexLiteral
)

type literal struct {
	kind  literalKind
	value string // decoded string value, or regex source
	flags string // regex flags
}

// render emits the literal in the target dialect.
func (l literal) render() string {
	if l.kind == regexLiteral {
		return RegexLiteral(l.value, l.flags)
	}
	return PyString(l.value)
}

func placeholder(i int) string { return "\x00" + strconv.Itoa(i) + "\x00" }

var placeholderRe = regexp.MustCompile(`\x00([0-9]+)\x00`)

// regexContext lists the characters after which a slash starts a regex
// literal rather than a division.
const regexContext = "(,=:[!&|?{};"

// lex pulls the string literals, regex literals and trailing comment out
// of one source line. The returned code holds a placeholder per literal so
// rewrite rules never see literal contents.
func lex(line string) (code string, lits []literal, comment string) {
	var b strings.Builder
	var prev byte

	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			for j < len(line) && line[j] != c {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			raw := line[i+1 : min(j, len(line))]
			lits = append(lits, literal{kind: stringLiteral, value: unescapeJS(raw)})
			b.WriteString(placeholder(len(lits) - 1))
			prev = c
			i = j + 1

		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			comment = strings.TrimSpace(line[i+2:])
			i = len(line)

		case c == '/' && (prev == 0 || strings.IndexByte(regexContext, prev) >= 0):
			end := regexEnd(line, i+1)
			if end < 0 {
				b.WriteByte(c)
				prev = c
				i++
				continue
			}
			k := end + 1
			for k < len(line) && line[k] >= 'a' && line[k] <= 'z' {
				k++
			}
			lits = append(lits, literal{kind: regexLiteral, value: line[i+1 : end], flags: line[end+1 : k]})
			b.WriteString(placeholder(len(lits) - 1))
			prev = '/'
			i = k

		default:
			b.WriteByte(c)
			if c != ' ' && c != '\t' {
				prev = c
			}
			i++
		}
	}
	return b.String(), lits, comment
}

// regexEnd returns the index of the slash closing a regex literal whose
// body starts at from, or -1.
func regexEnd(line string, from int) int {
	inClass := false
	for j := from; j < len(line); j++ {
		switch line[j] {
		case '\\':
			j++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				if j == from {
					return -1
				}
				return j
			}
		}
	}
	return -1
}

// restore swaps placeholders back for rendered literals.
func restore(code string, lits []literal) string {
	return placeholderRe.ReplaceAllStringFunc(code, func(m string) string {
		i, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || i >= len(lits) {
			return m
		}
		return lits[i].render()
	})
}

// unescapeJS decodes the escape sequences of a JavaScript string literal.
func unescapeJS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case 'x':
			if r, ok := hexRune(s, i+1, 2); ok {
				b.WriteRune(r)
				i += 2
				continue
			}
			b.WriteByte('x')
		case 'u':
			if r, ok := hexRune(s, i+1, 4); ok {
				b.WriteRune(r)
				i += 4
				continue
			}
			b.WriteByte('u')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func hexRune(s string, from, n int) (rune, bool) {
	if from+n > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[from:from+n], 16, 32)
	if err != nil || !utf8.ValidRune(rune(v)) {
		return 0, false
	}
	return rune(v), true
}

package selector

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// escapeUnicode mirrors Python's "unicode_escape" codec, which is what pytest
// applies to parametrize ids before they become part of a node id.
func escapeUnicode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	return b.String()
}

// hasEscape reports whether s contains a backslash escape sequence
func hasEscape(s string) bool {
	return strings.IndexByte(s, '\\') >= 0
}

// unescapeUnicode reverses escapeUnicode. Unknown or truncated sequences are
// kept literally.
func unescapeUnicode(s string) string {
	if !hasEscape(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			r, size := utf8.DecodeRuneInString(s[i:])
			b.WriteRune(r)
			i += size
			continue
		}

		switch next := s[i+1]; next {
		case '\\', '\'', '"':
			b.WriteByte(next)
			i += 2
		case 't':
			b.WriteByte('\t')
			i += 2
		case 'n':
			b.WriteByte('\n')
			i += 2
		case 'r':
			b.WriteByte('\r')
			i += 2
		case 'x', 'u', 'U':
			width := hexWidth(next)
			r, ok := parseHex(s, i+2, width)
			if !ok {
				b.WriteByte(c)
				i++
				continue
			}
			i += 2 + width
			if utf16.IsSurrogate(r) {
				// a pair written as two \u escapes
				if low, ok := lowSurrogateAt(s, i); ok {
					r = utf16.DecodeRune(r, low)
					i += 6
				}
			}
			b.WriteRune(r)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func hexWidth(kind byte) int {
	switch kind {
	case 'x':
		return 2
	case 'u':
		return 4
	default:
		return 8
	}
}

func parseHex(s string, start, width int) (rune, bool) {
	if start+width > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[start:start+width], 16, 32)
	if err != nil || v > utf8.MaxRune {
		return 0, false
	}
	return rune(v), true
}

func lowSurrogateAt(s string, i int) (rune, bool) {
	if i+6 > len(s) || s[i] != '\\' || s[i+1] != 'u' {
		return 0, false
	}
	r, ok := parseHex(s, i+2, 4)
	if !ok || r < 0xdc00 || r > 0xdfff {
		return 0, false
	}
	return r, true
}

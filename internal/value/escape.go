package value

import "strings"

const escapeChar = '\\'

// keyEscaper backslash-escapes every character that delimits a part of a canonical key, so
// names, ids and property values can never run into each other.
var keyEscaper = strings.NewReplacer(
	`\`, `\\`,
	"/", `\/`,
	"~", `\~`,
	"@", `\@`,
	"{", `\{`,
	"}", `\}`,
	"[", `\[`,
	"]", `\]`,
	",", `\,`,
	"=", `\=`,
	"<", `\<`,
	">", `\>`,
	"|", `\|`,
)

// EscapeKey escapes the key delimiters in s, for embedding an id or value in a key.
func EscapeKey(s string) string {
	return keyEscaper.Replace(s)
}

func unescapeKey(s string) string {
	if strings.IndexByte(s, escapeChar) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == escapeChar && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// indexUnescaped returns the index of the first (or last) occurrence of sep that is not
// preceded by an escape, or -1.
func indexUnescaped(s string, sep byte, last bool) int {
	found := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case escapeChar:
			i++
		case sep:
			if !last {
				return i
			}
			found = i
		}
	}
	return found
}

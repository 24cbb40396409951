package amount

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	excerptLength    = 48
	truncationMarker = "..."
)

// Attribute fills Source and Method on each final amount. The source quotes the text
// starting at the amount's offset, or the start of the text when the offset is unknown.
func Attribute(finals []FinalAmount, text string, method Method) []FinalAmount {
	if method == "" {
		method = MethodText
	}
	out := make([]FinalAmount, len(finals))
	for i, f := range finals {
		start := 0
		if f.SourceOffset >= 0 && f.SourceOffset < len(text) {
			start = f.SourceOffset
		}
		f.Method = method
		f.Source = fmt.Sprintf("%s: '%s'", method, excerpt(text[start:]))
		out[i] = f
	}
	return out
}

// excerpt cuts s to excerptLength bytes on a rune boundary and collapses whitespace
func excerpt(s string) string {
	cut := false
	if len(s) > excerptLength {
		end := excerptLength
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		s = s[:end]
		cut = true
	}
	s = strings.Join(strings.Fields(s), " ")
	if cut {
		s += truncationMarker
	}
	return s
}

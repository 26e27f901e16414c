// Package clip shortens text to a character budget.
package clip

import "unicode/utf8"

// Ellipsis marks text that was cut short.
const Ellipsis = "…"

// Text returns s unchanged when it has at most max characters. Longer text
// keeps its first max-1 characters followed by Ellipsis, so the result is
// exactly max characters long. Counting is by rune, never splitting a
// multi-byte character.
func Text(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}

	keep := max - 1
	for i := range s {
		if keep == 0 {
			return s[:i] + Ellipsis
		}
		keep--
	}
	return s
}

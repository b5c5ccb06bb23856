// Package strings holds text helpers shared by the CLI output.
package strings

import (
	"strings"
)

// DefaultCellMaxLen bounds free-form text such as error details in table cells.
const DefaultCellMaxLen = 60

// minCellLen leaves room for one character plus the ellipsis.
const minCellLen = 4

// SingleLine collapses every run of whitespace, newlines included, into a
// single space and cuts the result to maxLen runes, ending in "..." when
// shortened.
func SingleLine(s string, maxLen int) string {
	if maxLen < minCellLen {
		maxLen = minCellLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// Package textutil normalizes extracted text and estimates token counts.
package textutil

import (
	"regexp"
	"strings"
)

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manyBlanks   = regexp.MustCompile(`[\t ]{2,}`)
)

// Clean collapses whitespace artifacts left behind by extraction:
// zero-width characters are dropped, carriage returns become newlines,
// runs of three or more newlines collapse to a paragraph break, and runs
// of tabs/spaces collapse to a single space.
func Clean(value string) string {
	out := strings.ReplaceAll(value, "\u200B", "")
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = manyNewlines.ReplaceAllString(out, "\n\n")
	out = manyBlanks.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// EstimateTokens gives a coarse token estimate (~4 chars per token, never
// below 1). Not an exact tokenizer count; used for storage and batching.
func EstimateTokens(value string) int {
	n := (len(value) + 3) / 4
	if n < 1 {
		return 1
	}
	return n
}

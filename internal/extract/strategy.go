// Package extract turns noisy OCR text of a header or footer region into
// typed fields. Every field is resolved by an ordered chain of strategies;
// the first strategy that finds a value wins. Parsing never fails: a field
// nobody could resolve is left nil.
package extract

import (
	"regexp"
	"strings"
)

// Strategy is one way of finding a field value in a block of text.
type Strategy[T any] struct {
	Name string
	Find func(text string) (T, bool)
}

// First applies the chain in order and stops at the first success.
func First[T any](text string, chain []Strategy[T]) (T, string, bool) {
	for _, s := range chain {
		if v, ok := s.Find(text); ok {
			return v, s.Name, true
		}
	}
	var zero T
	return zero, "", false
}

// Trace records which strategy resolved each field.
type Trace map[string]string

var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeText uppercases and collapses whitespace.
func NormalizeText(s string) string {
	s = strings.ToUpper(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// amountPattern matches one amount: grouped thousands with an optional
// decimal part ("1 200,00", "1.200,00") or a plain number ("1200.00").
const amountPattern = `\d{1,3}(?:[ .,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d+)?`

var (
	amountRe  = regexp.MustCompile(amountPattern)
	nonNumRe  = regexp.MustCompile(`[^0-9.]`)
	percentRe = regexp.MustCompile(`^\s*%`)
)

// CleanNumber drops whitespace, turns decimal commas into points and strips
// everything that is not a digit or a point. When several points remain,
// only the last one is kept as the decimal separator. The result is stable
// under a second application.
func CleanNumber(s string) string {
	s = spaceRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", ".")
	s = nonNumRe.ReplaceAllString(s, "")
	if n := strings.Count(s, "."); n > 1 {
		last := strings.LastIndex(s, ".")
		s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
	}
	return s
}

// NormalizeNumber parses an OCR amount. It returns false when nothing
// numeric is left after cleaning.
func NormalizeNumber(s string) (float64, bool) {
	c := CleanNumber(s)
	if c == "" || c == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(c, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// amountTokens returns every amount in text that is at least two
// characters long and is not a percentage.
func amountTokens(text string) []string {
	var out []string
	for _, loc := range amountRe.FindAllStringIndex(text, -1) {
		tok := text[loc[0]:loc[1]]
		if len(tok) < 2 || percentRe.MatchString(text[loc[1]:]) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// RankedAmounts returns the distinct amounts of text, largest first.
func RankedAmounts(text string) []float64 {
	seen := map[float64]struct{}{}
	var out []float64
	for _, tok := range amountTokens(text) {
		v, ok := NormalizeNumber(tok)
		if !ok || v == 0 {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

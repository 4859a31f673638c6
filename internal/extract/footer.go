package extract

import (
	"regexp"
	"strings"

	"github.com/local/invoicebrain/internal/document"
)

// Label synonyms per total, longest first so "TOTAL HT" wins over "HT".
var (
	htLabels  = []string{`TOTAL\s*HT`, `MONTANT\s*HT`, `HT`}
	taxLabels = []string{`TOTAL\s*TAXES?`, `MONTANT\s*TAXES?`, `TOTAL\s*TVA`, `MONTANT\s*TVA`, `TAXES?`, `TVA`}
	ttcLabels = []string{`TOTAL\s*TTC`, `MONTANT\s*TTC`, `TTC`}
)

// labelRegexp builds `\b(labels)\b [:-] amount`. Labels are whole words so
// "HT" never matches inside another token.
func labelRegexp(labels []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(labels, "|") + `)\b\s*[:\-]?\s*(` + amountPattern + `)`)
}

// LabelAmount finds the first labeled amount that is not a percentage.
func LabelAmount(name string, labels []string) Strategy[float64] {
	re := labelRegexp(labels)
	return Strategy[float64]{
		Name: name,
		Find: func(text string) (float64, bool) {
			for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
				if percentRe.MatchString(text[m[3]:]) {
					continue
				}
				if v, ok := NormalizeNumber(text[m[2]:m[3]]); ok {
					return v, true
				}
			}
			return 0, false
		},
	}
}

// RankAmount takes the n-th largest distinct amount of the text. It
// assumes TTC >= HT >= tax, which holds for ordinary invoices.
func RankAmount(n int) Strategy[float64] {
	return Strategy[float64]{
		Name: "rank",
		Find: func(text string) (float64, bool) {
			ranked := RankedAmounts(text)
			if n >= len(ranked) {
				return 0, false
			}
			return ranked[n], true
		},
	}
}

var (
	ttcChain = []Strategy[float64]{LabelAmount("label", ttcLabels), RankAmount(0)}
	htChain  = []Strategy[float64]{LabelAmount("label", htLabels), RankAmount(1)}
	taxChain = []Strategy[float64]{LabelAmount("label", taxLabels), RankAmount(2)}
)

// ParseFooter extracts the three totals from footer OCR text.
func ParseFooter(raw string) (document.Totals, Trace) {
	text := strings.Join(strings.Fields(raw), " ")
	trace := Trace{}
	var t document.Totals
	resolve := func(field string, chain []Strategy[float64]) *float64 {
		v, name, ok := First(text, chain)
		if !ok {
			return nil
		}
		trace[field] = name
		return document.Num(v)
	}
	t.HT = resolve("total_ht", htChain)
	t.Tax = resolve("total_tax", taxChain)
	t.TTC = resolve("total_ttc", ttcChain)
	return t, trace
}

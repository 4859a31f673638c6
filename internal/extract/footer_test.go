package extract

import (
	"fmt"
	"strings"
	"testing"
)

func num(v *float64) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%.2f", *v)
}

func TestCleanNumberIdempotent(t *testing.T) {
	cases := map[string]string{
		"1 200,50":     "1200.50",
		"1.234.567,89": "1234567.89",
		"EUR 99,9":     "99.9",
		"1200.00":      "1200.00",
		"12 345":       "12345",
	}
	for in, want := range cases {
		once := CleanNumber(in)
		if once != want {
			t.Errorf("CleanNumber(%q) = %q, want %q", in, once, want)
		}
		if twice := CleanNumber(once); twice != once {
			t.Errorf("CleanNumber not idempotent: %q -> %q", once, twice)
		}
		a, okA := NormalizeNumber(in)
		b, okB := NormalizeNumber(once)
		if !okA || !okB || a != b {
			t.Errorf("NormalizeNumber(%q) = %v, NormalizeNumber(%q) = %v", in, a, once, b)
		}
	}
	if _, ok := NormalizeNumber("abc"); ok {
		t.Error("non numeric input should not parse")
	}
}

func TestParseFooterLabelled(t *testing.T) {
	tot, trace := ParseFooter("Total HT 1000,00 Total TVA 200,00 Total TTC 1200,00")
	if num(tot.HT) != "1000.00" || num(tot.Tax) != "200.00" || num(tot.TTC) != "1200.00" {
		t.Fatalf("totals = %s %s %s", num(tot.HT), num(tot.Tax), num(tot.TTC))
	}
	for _, f := range []string{"total_ht", "total_tax", "total_ttc"} {
		if trace[f] != "label" {
			t.Errorf("%s resolved by %q", f, trace[f])
		}
	}
}

func TestParseFooterRankFallback(t *testing.T) {
	tot, trace := ParseFooter("1200.00 1000.00 200.00")
	if num(tot.TTC) != "1200.00" || num(tot.HT) != "1000.00" || num(tot.Tax) != "200.00" {
		t.Fatalf("totals = ht %s tax %s ttc %s", num(tot.HT), num(tot.Tax), num(tot.TTC))
	}
	if trace["total_ttc"] != "rank" {
		t.Errorf("ttc strategy = %q", trace["total_ttc"])
	}
}

func TestRankOrdering(t *testing.T) {
	sets := [][]float64{
		{5.5, 42.25, 7.75, 300.1},
		{1, 2, 3},
		{999.99, 10.5, 250, 250, 12},
		{0.5, 18.2, 100},
	}
	for _, set := range sets {
		parts := make([]string, len(set))
		for i, v := range set {
			parts[i] = fmt.Sprintf("%.2f", v)
		}
		text := strings.Join(parts, " ")
		tot, _ := ParseFooter(text)
		if tot.TTC == nil || tot.HT == nil || tot.Tax == nil {
			t.Fatalf("%q: unresolved totals", text)
		}
		if !(*tot.TTC >= *tot.HT && *tot.HT >= *tot.Tax) {
			t.Errorf("%q: ttc %v ht %v tax %v out of order", text, *tot.TTC, *tot.HT, *tot.Tax)
		}
	}
}

func TestParseFooterSkipsPercentages(t *testing.T) {
	tot, _ := ParseFooter("TVA 20% Total TVA 200,00 Total HT 1 000,00 TTC: 1 200,00")
	if num(tot.Tax) != "200.00" || num(tot.HT) != "1000.00" || num(tot.TTC) != "1200.00" {
		t.Errorf("totals = ht %s tax %s ttc %s", num(tot.HT), num(tot.Tax), num(tot.TTC))
	}
}

func TestParseFooterMixed(t *testing.T) {
	// Only TTC is labelled; the others come from the ranked set.
	tot, trace := ParseFooter("Net a payer TTC 120,00 100,00 20,00")
	if num(tot.TTC) != "120.00" || num(tot.HT) != "100.00" || num(tot.Tax) != "20.00" {
		t.Errorf("totals = ht %s tax %s ttc %s", num(tot.HT), num(tot.Tax), num(tot.TTC))
	}
	if trace["total_ttc"] != "label" || trace["total_ht"] != "rank" {
		t.Errorf("trace = %v", trace)
	}
}

func TestParseFooterEmpty(t *testing.T) {
	tot, trace := ParseFooter("")
	if tot.HT != nil || tot.Tax != nil || tot.TTC != nil || len(trace) != 0 {
		t.Errorf("empty footer produced %s %s %s", num(tot.HT), num(tot.Tax), num(tot.TTC))
	}
}

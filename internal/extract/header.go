package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/local/invoicebrain/internal/document"
)

var (
	dateRe          = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4})\b`)
	dacRe           = regexp.MustCompile(`DAC\s*[/\-]?\s*(\d{5,15})`)
	supplierLabelRe = regexp.MustCompile(`CODE\s*FOURNIS{1,2}EUR\s*[:\-=]?\s*(\d{4,10})\b`)
	orderLabelRe    = regexp.MustCompile(`\bN(?:°|º|O)?\.?\s*(?:DE\s+)?COMMANDE\s*[:\-]?\s*(\d{6,12})\b`)
	digits6to10Re   = regexp.MustCompile(`\b\d{6,10}\b`)
	digits6to12Re   = regexp.MustCompile(`\b\d{6,12}\b`)
)

// poTypos are recurring OCR misreads of the PO header labels.
var poTypos = strings.NewReplacer(
	"FORTIS DIE", "FOURNISSEUR",
	"FOURNI SSEUR", "FOURNISSEUR",
)

// NormalizeHeader prepares header OCR text for matching.
func NormalizeHeader(t document.DocType, raw string) string {
	text := NormalizeText(raw)
	if t == document.TypePO {
		text = poTypos.Replace(text)
	}
	return text
}

// FindDate returns the first valid DD/MM/YYYY token.
func FindDate(text string) (string, bool) {
	for _, m := range dateRe.FindAllStringSubmatch(text, -1) {
		if _, err := time.Parse("02/01/2006", m[1]); err == nil {
			return m[1], true
		}
	}
	return "", false
}

// NormalizeDate turns DD/MM/YYYY into YYYYMMDD. Anything else yields "".
func NormalizeDate(date string) string {
	if len(date) != 10 || date[2] != '/' || date[5] != '/' {
		return ""
	}
	return date[6:] + date[3:5] + date[:2]
}

// DenormalizeDate turns YYYYMMDD back into DD/MM/YYYY. Input of any other
// length is returned unchanged.
func DenormalizeDate(norm string) string {
	if len(norm) != 8 {
		return norm
	}
	return norm[6:] + "/" + norm[4:6] + "/" + norm[:4]
}

// FindDAC returns the DAC reference ("DAC" + digits). It is the only way
// to obtain the reference: a bare digit run is never promoted to one.
func FindDAC(text string) (string, bool) {
	m := dacRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return "DAC" + m[1], true
}

// standaloneNumbers lists numeric tokens matched by re that are neither
// the DAC digit run nor part of the header date.
func standaloneNumbers(text string, re *regexp.Regexp) []string {
	var dacDigits, dateDigits string
	if dac, ok := FindDAC(text); ok {
		dacDigits = strings.TrimPrefix(dac, "DAC")
	}
	if date, ok := FindDate(text); ok {
		dateDigits = strings.ReplaceAll(date, "/", "")
	}
	var out []string
	for _, n := range re.FindAllString(text, -1) {
		if dacDigits != "" && n == dacDigits {
			continue
		}
		if dateDigits != "" && strings.Contains(dateDigits, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

var (
	dateChain = []Strategy[string]{{Name: "pattern", Find: FindDate}}
	dacChain  = []Strategy[string]{{Name: "label", Find: FindDAC}}

	supplierChain = []Strategy[string]{
		{Name: "label", Find: func(text string) (string, bool) {
			m := supplierLabelRe.FindStringSubmatch(text)
			if m == nil {
				return "", false
			}
			return m[1], true
		}},
		{Name: "positional", Find: func(text string) (string, bool) {
			nums := standaloneNumbers(text, digits6to10Re)
			if len(nums) == 0 {
				return "", false
			}
			return nums[len(nums)-1], true
		}},
	}

	roOrderChain = []Strategy[string]{
		{Name: "label", Find: func(text string) (string, bool) {
			m := orderLabelRe.FindStringSubmatch(text)
			if m == nil {
				return "", false
			}
			return m[1], true
		}},
		{Name: "positional", Find: func(text string) (string, bool) {
			nums := standaloneNumbers(text, digits6to12Re)
			if len(nums) == 0 {
				return "", false
			}
			return nums[0], true
		}},
	}
)

func resolveString(text, field string, chain []Strategy[string], trace Trace) *string {
	v, name, ok := First(text, chain)
	if !ok {
		return nil
	}
	trace[field] = name
	return document.Str(v)
}

func dateFields(text string, trace Trace) (date, norm *string) {
	date = resolveString(text, "date", dateChain, trace)
	if date != nil {
		norm = document.Str(NormalizeDate(*date))
	}
	return date, norm
}

// ParsePOHeader extracts purchase order header fields.
func ParsePOHeader(raw string) (document.POFields, Trace) {
	text := NormalizeHeader(document.TypePO, raw)
	trace := Trace{}
	var f document.POFields
	f.Date, f.DateNorm = dateFields(text, trace)
	f.OrderNumber = resolveString(text, "order_number", dacChain, trace)
	f.SupplierCode = resolveString(text, "supplier_code", supplierChain, trace)
	return f, trace
}

// ParseROHeader extracts reception order header fields.
func ParseROHeader(raw string) (document.ROFields, Trace) {
	text := NormalizeHeader(document.TypeRO, raw)
	trace := Trace{}
	var f document.ROFields
	f.Date, f.DateNorm = dateFields(text, trace)
	f.ReceptionNumber = resolveString(text, "reception_number", dacChain, trace)
	f.OrderNumber = resolveString(text, "order_number", roOrderChain, trace)
	return f, trace
}

// ParseHeader fills the header part of a record according to its type.
func ParseHeader(t document.DocType, raw string) (document.Record, Trace) {
	rec := document.NewRecord(t)
	var trace Trace
	switch t {
	case document.TypePO:
		var f document.POFields
		f, trace = ParsePOHeader(raw)
		rec.PO = &f
	case document.TypeRO:
		var f document.ROFields
		f, trace = ParseROHeader(raw)
		rec.RO = &f
	default:
		trace = Trace{}
	}
	return rec, trace
}

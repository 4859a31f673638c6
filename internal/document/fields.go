package document

import (
	"fmt"
	"math"
	"strconv"
)

// POFields are the header fields of a purchase order.
type POFields struct {
	Date         *string
	DateNorm     *string
	OrderNumber  *string
	SupplierCode *string
}

// ROFields are the header fields of a reception order.
type ROFields struct {
	Date            *string
	DateNorm        *string
	ReceptionNumber *string
	OrderNumber     *string
}

// Totals are the footer amounts. A nil value was not found.
type Totals struct {
	HT  *float64
	Tax *float64
	TTC *float64
}

// Plausible reports whether HT + Tax matches TTC within the relative
// tolerance. Incomplete totals are not judged.
func (t Totals) Plausible(tolerance float64) bool {
	if t.HT == nil || t.Tax == nil || t.TTC == nil || *t.TTC == 0 {
		return true
	}
	return math.Abs(*t.HT+*t.Tax-*t.TTC)/math.Abs(*t.TTC) <= tolerance
}

// Record is the complete field mapping of one document. Exactly one of PO
// or RO is set, matching Type.
type Record struct {
	Type   DocType
	PO     *POFields
	RO     *ROFields
	Totals Totals
}

// NewRecord returns an empty record for the given type.
func NewRecord(t DocType) Record {
	r := Record{Type: t}
	switch t {
	case TypePO:
		r.PO = &POFields{}
	case TypeRO:
		r.RO = &ROFields{}
	}
	return r
}

// DateNorm returns the normalized date, or nil.
func (r Record) DateNorm() *string {
	switch {
	case r.PO != nil:
		return r.PO.DateNorm
	case r.RO != nil:
		return r.RO.DateNorm
	}
	return nil
}

// Primary returns the reference used in the canonical name: the order
// number of a PO, the reception number of an RO.
func (r Record) Primary() *string {
	switch {
	case r.PO != nil:
		return r.PO.OrderNumber
	case r.RO != nil:
		return r.RO.ReceptionNumber
	}
	return nil
}

// Secondary returns the linking code: supplier code (PO) or order number (RO).
func (r Record) Secondary() *string {
	switch {
	case r.PO != nil:
		return r.PO.SupplierCode
	case r.RO != nil:
		return r.RO.OrderNumber
	}
	return nil
}

// Field is one named value of a record, in sidecar order.
type Field struct {
	Name  string
	Value string
	Set   bool
}

// Fields lists every field of the record in sidecar order, including unset ones.
func (r Record) Fields() []Field {
	out := []Field{{Name: "document_type", Value: string(r.Type), Set: r.Type != ""}}
	add := func(name string, v *string) {
		f := Field{Name: name}
		if v != nil {
			f.Value, f.Set = *v, true
		}
		out = append(out, f)
	}
	addNum := func(name string, v *float64) {
		f := Field{Name: name}
		if v != nil {
			f.Value, f.Set = FormatAmount(*v), true
		}
		out = append(out, f)
	}
	switch {
	case r.PO != nil:
		add("date", r.PO.Date)
		add("date_norm", r.PO.DateNorm)
		add("order_number", r.PO.OrderNumber)
		add("supplier_code", r.PO.SupplierCode)
	case r.RO != nil:
		add("date", r.RO.Date)
		add("date_norm", r.RO.DateNorm)
		add("reception_number", r.RO.ReceptionNumber)
		add("order_number", r.RO.OrderNumber)
	}
	addNum("total_ht", r.Totals.HT)
	addNum("total_tax", r.Totals.Tax)
	addNum("total_ttc", r.Totals.TTC)
	return out
}

// Missing returns the names of unset fields.
func (r Record) Missing() []string {
	var out []string
	for _, f := range r.Fields() {
		if !f.Set {
			out = append(out, f.Name)
		}
	}
	return out
}

// Conflict is a field whose later value differed from the one already held.
type Conflict struct {
	Field    string
	Kept     string
	Rejected string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: kept %q, rejected %q", c.Field, c.Kept, c.Rejected)
}

// Fill copies fields from other that are absent in r. Fields already set
// are never overwritten; differing values are returned as conflicts.
func (r *Record) Fill(other Record) []Conflict {
	var conflicts []Conflict
	str := func(name string, dst **string, src *string) {
		if src == nil {
			return
		}
		if *dst == nil {
			v := *src
			*dst = &v
			return
		}
		if **dst != *src {
			conflicts = append(conflicts, Conflict{Field: name, Kept: **dst, Rejected: *src})
		}
	}
	num := func(name string, dst **float64, src *float64) {
		if src == nil {
			return
		}
		if *dst == nil {
			v := *src
			*dst = &v
			return
		}
		if **dst != *src {
			conflicts = append(conflicts, Conflict{Field: name, Kept: FormatAmount(**dst), Rejected: FormatAmount(*src)})
		}
	}

	if r.PO != nil && other.PO != nil {
		str("date", &r.PO.Date, other.PO.Date)
		str("date_norm", &r.PO.DateNorm, other.PO.DateNorm)
		str("order_number", &r.PO.OrderNumber, other.PO.OrderNumber)
		str("supplier_code", &r.PO.SupplierCode, other.PO.SupplierCode)
	}
	if r.RO != nil && other.RO != nil {
		str("date", &r.RO.Date, other.RO.Date)
		str("date_norm", &r.RO.DateNorm, other.RO.DateNorm)
		str("reception_number", &r.RO.ReceptionNumber, other.RO.ReceptionNumber)
		str("order_number", &r.RO.OrderNumber, other.RO.OrderNumber)
	}
	num("total_ht", &r.Totals.HT, other.Totals.HT)
	num("total_tax", &r.Totals.Tax, other.Totals.Tax)
	num("total_ttc", &r.Totals.TTC, other.Totals.TTC)
	return conflicts
}

// FormatAmount renders an amount with two decimals, as written to sidecars.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Str and Num build optional values.
func Str(s string) *string { return &s }
func Num(v float64) *float64 { return &v }

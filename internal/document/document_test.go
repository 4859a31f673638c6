package document

import (
	"errors"
	"reflect"
	"testing"
)

func TestSetTypeOnce(t *testing.T) {
	d := New("incoming/scan.pdf")
	if err := d.SetType(TypePO); err != nil {
		t.Fatalf("first SetType: %v", err)
	}
	if d.Fields.PO == nil || d.Fields.RO != nil {
		t.Fatalf("record not shaped for PO: %+v", d.Fields)
	}
	if err := d.SetType(TypeRO); !errors.Is(err, ErrTypeAlreadySet) {
		t.Fatalf("second SetType err = %v, want ErrTypeAlreadySet", err)
	}
	if d.Type != TypePO {
		t.Errorf("type changed to %s", d.Type)
	}
}

func TestAdvance(t *testing.T) {
	d := New("a.pdf")
	if err := d.Advance(StageClassified); err != nil {
		t.Fatal(err)
	}
	if err := d.Advance(StageExtracted); err != nil {
		t.Fatal(err)
	}
	if err := d.Advance(StageClassified); !errors.Is(err, ErrStageBackwards) {
		t.Errorf("backwards move err = %v", err)
	}
	if err := d.Advance(StageRejected); err != nil {
		t.Fatal(err)
	}
	if err := d.Advance(StageFinalized); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("advance after reject err = %v", err)
	}
}

func TestStem(t *testing.T) {
	d := New("data/PO_detected/PO-20240101-abcd1234.pdf")
	if got := d.Stem(); got != "PO-20240101-abcd1234" {
		t.Errorf("Stem = %q", got)
	}
}

func TestRecordFieldsOrder(t *testing.T) {
	r := NewRecord(TypeRO)
	r.RO.Date = Str("15/03/2024")
	r.RO.DateNorm = Str("20240315")
	r.RO.ReceptionNumber = Str("DAC123456")
	r.Totals.TTC = Num(1200)

	var names []string
	for _, f := range r.Fields() {
		names = append(names, f.Name)
	}
	want := []string{"document_type", "date", "date_norm", "reception_number", "order_number", "total_ht", "total_tax", "total_ttc"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("field order = %v", names)
	}
	if got := r.Missing(); !reflect.DeepEqual(got, []string{"order_number", "total_ht", "total_tax"}) {
		t.Errorf("Missing = %v", got)
	}
	if *r.Primary() != "DAC123456" || r.Secondary() != nil || *r.DateNorm() != "20240315" {
		t.Errorf("accessors wrong: %v %v %v", r.Primary(), r.Secondary(), r.DateNorm())
	}
}

func TestFillNeverOverwrites(t *testing.T) {
	r := NewRecord(TypePO)
	r.PO.OrderNumber = Str("DAC1")
	r.Totals.HT = Num(100)

	other := NewRecord(TypePO)
	other.PO.OrderNumber = Str("DAC2")
	other.PO.SupplierCode = Str("123456")
	other.Totals.HT = Num(100)
	other.Totals.TTC = Num(120)

	conflicts := r.Fill(other)
	if len(conflicts) != 1 || conflicts[0].Field != "order_number" || conflicts[0].Kept != "DAC1" {
		t.Fatalf("conflicts = %v", conflicts)
	}
	if *r.PO.OrderNumber != "DAC1" {
		t.Errorf("order number overwritten: %s", *r.PO.OrderNumber)
	}
	if r.PO.SupplierCode == nil || *r.PO.SupplierCode != "123456" {
		t.Errorf("supplier code not filled")
	}
	if r.Totals.TTC == nil || *r.Totals.TTC != 120 {
		t.Errorf("ttc not filled")
	}
	other.PO.SupplierCode = Str("999999")
	if *r.PO.SupplierCode != "123456" {
		t.Errorf("fill aliases the source value")
	}
}

func TestPlausible(t *testing.T) {
	cases := []struct {
		name   string
		totals Totals
		want   bool
	}{
		{"exact", Totals{Num(1000), Num(200), Num(1200)}, true},
		{"within tolerance", Totals{Num(1000), Num(200), Num(1210)}, true},
		{"off", Totals{Num(1000), Num(20), Num(1200)}, false},
		{"incomplete", Totals{nil, Num(200), Num(1200)}, true},
	}
	for _, c := range cases {
		if got := c.totals.Plausible(0.02); got != c.want {
			t.Errorf("%s: Plausible = %v, want %v", c.name, got, c.want)
		}
	}
}

package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/registry"
)

type fakeLister []registry.Entry

func (f fakeLister) List(context.Context, registry.Filter) ([]registry.Entry, error) { return f, nil }

func TestWriteReport(t *testing.T) {
	entries := fakeLister{
		{
			Stem: "PO-20240315-DAC250000013", DocType: "PO", Path: "data/final/PO/PO-20240315-DAC250000013.pdf",
			DateNorm: document.Str("20240315"), PrimaryRef: document.Str("DAC250000013"),
			TotalHT: document.Num(1000), TotalTTC: document.Num(1200), Renamed: true,
		},
		{Stem: "RO-20240316-abcd1234", DocType: "RO", Reason: "missing reference"},
	}
	out := filepath.Join(t.TempDir(), "report.xlsx")
	n, err := WriteReport(context.Background(), entries, registry.Filter{}, out)
	if err != nil || n != 2 {
		t.Fatalf("WriteReport = %d, %v", n, err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][0] != "Type" || rows[1][1] != "15/03/2024" || rows[1][2] != "DAC250000013" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[1][4] != "1000" || rows[1][5] != "" || rows[1][6] != "1200" {
		t.Errorf("totals = %v", rows[1][4:7])
	}
	if rows[2][10] != "missing reference" {
		t.Errorf("row 2 = %v", rows[2])
	}
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		t.Error("default sheet kept")
	}
}

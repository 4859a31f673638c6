// Package export writes the document registry as an XLSX report.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/local/invoicebrain/internal/extract"
	"github.com/local/invoicebrain/internal/registry"
)

const sheet = "Documents"

var headers = []string{
	"Type", "Date", "Reference", "Linked code", "Total HT", "Total tax", "Total TTC", "Stem", "Path", "Renamed", "Reason",
}

// Lister is the registry query the report reads from.
type Lister interface {
	List(ctx context.Context, f registry.Filter) ([]registry.Entry, error)
}

// Build lays the entries out on one sheet. Missing values are left blank.
func Build(entries []registry.Entry) (*excelize.File, error) {
	f := excelize.NewFile()
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	if idx, _ := f.GetSheetIndex(sheet); idx >= 0 {
		f.SetActiveSheet(idx)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, e := range entries {
		row := r + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, e.DocType)
		if e.DateNorm != nil && len(*e.DateNorm) == 8 {
			write(2, extract.DenormalizeDate(*e.DateNorm))
		}
		if e.PrimaryRef != nil {
			write(3, *e.PrimaryRef)
		}
		if e.SecondaryRef != nil {
			write(4, *e.SecondaryRef)
		}
		for col, v := range map[int]*float64{5: e.TotalHT, 6: e.TotalTax, 7: e.TotalTTC} {
			if v != nil {
				write(col, *v)
			}
		}
		write(8, e.Stem)
		write(9, e.Path)
		write(10, e.Renamed)
		write(11, e.Reason)
	}

	_ = f.SetColWidth(sheet, "A", "A", 8)
	_ = f.SetColWidth(sheet, "B", "B", 12)
	_ = f.SetColWidth(sheet, "C", "D", 18)
	_ = f.SetColWidth(sheet, "E", "G", 14)
	_ = f.SetColWidth(sheet, "H", "H", 32)
	_ = f.SetColWidth(sheet, "I", "I", 60)
	return f, nil
}

// WriteReport queries the registry and saves the workbook at path.
func WriteReport(ctx context.Context, src Lister, filter registry.Filter, path string) (int, error) {
	start := time.Now()
	entries, err := src.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("query registry: %w", err)
	}
	f, err := Build(entries)
	if err != nil {
		return 0, fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}
	log.Info().Str("path", path).Int("rows", len(entries)).Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("report exported")
	return len(entries), nil
}

// Package sidecar persists the field record of a document as a two-column
// CSV file ("field,value") stored next to the PDF.
package sidecar

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/fsutil"
)

// Ext is the sidecar file extension.
const Ext = ".csv"

// Row is one field/value pair.
type Row struct {
	Field string
	Value string
}

// PathFor returns the sidecar path of a PDF: same directory, same stem.
func PathFor(pdfPath string) string {
	return strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + Ext
}

// Rows returns the set fields of rec in record order. Unset fields are omitted.
func Rows(rec document.Record) []Row {
	var out []Row
	for _, f := range rec.Fields() {
		if f.Set {
			out = append(out, Row{Field: f.Name, Value: f.Value})
		}
	}
	return out
}

func encode(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"field", "value"}); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Field, r.Value}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Write stores rows at path. It leaves the file untouched when the content
// would not change and reports whether it wrote.
func Write(path string, rows []Row) (bool, error) {
	data, err := encode(rows)
	if err != nil {
		return false, fmt.Errorf("encode sidecar: %w", err)
	}
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err := fsutil.WriteAtomic(path, data); err != nil {
		return false, fmt.Errorf("write sidecar %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// Read loads the rows of a sidecar file, skipping the header.
func Read(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read sidecar %s: %w", filepath.Base(path), err)
	}
	var out []Row
	for i, rec := range records {
		if i == 0 && rec[0] == "field" {
			continue
		}
		out = append(out, Row{Field: rec[0], Value: rec[1]})
	}
	return out, nil
}

// Upsert merges rows into the sidecar at path: existing fields keep their
// position and take the new value, unknown fields are appended. A missing
// file is created. Callers that must not overwrite recognized values load
// the file first (see Load) and pass only what they decided to keep.
func Upsert(path string, rows []Row) (bool, error) {
	existing, err := Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	index := make(map[string]int, len(existing))
	for i, r := range existing {
		index[r.Field] = i
	}
	for _, r := range rows {
		if i, ok := index[r.Field]; ok {
			existing[i].Value = r.Value
			continue
		}
		index[r.Field] = len(existing)
		existing = append(existing, r)
	}
	return Write(path, existing)
}

// Load rebuilds a record of type t from sidecar rows. Unknown fields and
// amounts that do not parse are ignored.
func Load(t document.DocType, rows []Row) document.Record {
	rec := document.NewRecord(t)
	str := func(v string) *string {
		if v == "" {
			return nil
		}
		return document.Str(v)
	}
	num := func(v string) *float64 {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return document.Num(f)
	}
	for _, r := range rows {
		switch r.Field {
		case "total_ht":
			rec.Totals.HT = num(r.Value)
		case "total_tax":
			rec.Totals.Tax = num(r.Value)
		case "total_ttc":
			rec.Totals.TTC = num(r.Value)
		}
		switch {
		case rec.PO != nil:
			switch r.Field {
			case "date":
				rec.PO.Date = str(r.Value)
			case "date_norm":
				rec.PO.DateNorm = str(r.Value)
			case "order_number":
				rec.PO.OrderNumber = str(r.Value)
			case "supplier_code":
				rec.PO.SupplierCode = str(r.Value)
			}
		case rec.RO != nil:
			switch r.Field {
			case "date":
				rec.RO.Date = str(r.Value)
			case "date_norm":
				rec.RO.DateNorm = str(r.Value)
			case "reception_number":
				rec.RO.ReceptionNumber = str(r.Value)
			case "order_number":
				rec.RO.OrderNumber = str(r.Value)
			}
		}
	}
	return rec
}

// Lookup returns the value of field, if present.
func Lookup(rows []Row, field string) (string, bool) {
	for _, r := range rows {
		if r.Field == field {
			return r.Value, true
		}
	}
	return "", false
}

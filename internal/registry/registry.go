// Package registry keeps a local SQLite index of processed documents, one
// row per stem, used for reporting and lookups.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/local/invoicebrain/internal/document"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	stem          TEXT PRIMARY KEY,
	doc_id        TEXT NOT NULL,
	doc_type      TEXT NOT NULL,
	intake_name   TEXT NOT NULL,
	path          TEXT NOT NULL,
	archive_path  TEXT NOT NULL DEFAULT '',
	date_norm     TEXT,
	primary_ref   TEXT,
	secondary_ref TEXT,
	total_ht      REAL,
	total_tax     REAL,
	total_ttc     REAL,
	renamed       INTEGER NOT NULL DEFAULT 0,
	reason        TEXT NOT NULL DEFAULT '',
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_type_date ON documents (doc_type, date_norm);
`

// Entry is one row of the documents table.
type Entry struct {
	Stem         string   `db:"stem"`
	DocID        string   `db:"doc_id"`
	DocType      string   `db:"doc_type"`
	IntakeName   string   `db:"intake_name"`
	Path         string   `db:"path"`
	ArchivePath  string   `db:"archive_path"`
	DateNorm     *string  `db:"date_norm"`
	PrimaryRef   *string  `db:"primary_ref"`
	SecondaryRef *string  `db:"secondary_ref"`
	TotalHT      *float64 `db:"total_ht"`
	TotalTax     *float64 `db:"total_tax"`
	TotalTTC     *float64 `db:"total_ttc"`
	Renamed      bool     `db:"renamed"`
	Reason       string   `db:"reason"`
	UpdatedAt    string   `db:"updated_at"`
}

// EntryFor converts a document into its registry row.
func EntryFor(doc *document.Document, now time.Time) Entry {
	f := doc.Fields
	return Entry{
		Stem:         doc.Stem(),
		DocID:        doc.ID,
		DocType:      string(doc.Type),
		IntakeName:   doc.IntakeName,
		Path:         doc.SourcePath,
		ArchivePath:  doc.ArchivePath,
		DateNorm:     f.DateNorm(),
		PrimaryRef:   f.Primary(),
		SecondaryRef: f.Secondary(),
		TotalHT:      f.Totals.HT,
		TotalTax:     f.Totals.Tax,
		TotalTTC:     f.Totals.TTC,
		Renamed:      doc.Renamed,
		Reason:       doc.NotRenamedReason,
		UpdatedAt:    now.UTC().Format(time.RFC3339),
	}
}

// Registry is the SQLite-backed document index.
type Registry struct {
	db *sqlx.DB
}

// Open connects to (and creates) the database file at path.
func Open(path string) (*Registry, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlx.Connect("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Record inserts or refreshes the row of doc.
func (r *Registry) Record(ctx context.Context, doc *document.Document) error {
	return r.Upsert(ctx, EntryFor(doc, time.Now()))
}

// Upsert writes e, replacing the row with the same stem.
func (r *Registry) Upsert(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO documents (stem, doc_id, doc_type, intake_name, path, archive_path, date_norm,
			primary_ref, secondary_ref, total_ht, total_tax, total_ttc, renamed, reason, updated_at)
		VALUES (:stem, :doc_id, :doc_type, :intake_name, :path, :archive_path, :date_norm,
			:primary_ref, :secondary_ref, :total_ht, :total_tax, :total_ttc, :renamed, :reason, :updated_at)
		ON CONFLICT(stem) DO UPDATE SET
			doc_id = excluded.doc_id,
			doc_type = excluded.doc_type,
			intake_name = excluded.intake_name,
			path = excluded.path,
			archive_path = excluded.archive_path,
			date_norm = excluded.date_norm,
			primary_ref = excluded.primary_ref,
			secondary_ref = excluded.secondary_ref,
			total_ht = excluded.total_ht,
			total_tax = excluded.total_tax,
			total_ttc = excluded.total_ttc,
			renamed = excluded.renamed,
			reason = excluded.reason,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.NamedExecContext(ctx, q, e); err != nil {
		return fmt.Errorf("record %s: %w", e.Stem, err)
	}
	return nil
}

// Get returns the entry for stem, or nil when there is none.
func (r *Registry) Get(ctx context.Context, stem string) (*Entry, error) {
	var e Entry
	err := r.db.GetContext(ctx, &e, `SELECT * FROM documents WHERE stem = ?`, stem)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Filter narrows List. Empty fields match everything; dates are YYYYMMDD.
type Filter struct {
	Type string
	From string
	To   string
}

// List returns entries ordered by type, date and stem.
func (r *Registry) List(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT * FROM documents WHERE 1=1`
	var args []interface{}
	if f.Type != "" {
		q += ` AND doc_type = ?`
		args = append(args, f.Type)
	}
	if f.From != "" {
		q += ` AND date_norm >= ?`
		args = append(args, f.From)
	}
	if f.To != "" {
		q += ` AND date_norm <= ?`
		args = append(args, f.To)
	}
	q += ` ORDER BY doc_type, date_norm, stem`

	var out []Entry
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

// Ping checks the database connection.
func (r *Registry) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Close closes the database.
func (r *Registry) Close() error { return r.db.Close() }

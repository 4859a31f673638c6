// Package document holds the unit of work that moves through the pipeline
// and the typed field records extracted for each document type.
package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DocType is the classification tag of a document.
type DocType string

const (
	TypePO      DocType = "PO"
	TypeRO      DocType = "RO"
	TypeUnknown DocType = "UNKNOWN"
)

// Known reports whether t is PO or RO.
func (t DocType) Known() bool { return t == TypePO || t == TypeRO }

// Stage is the position of a document in the pipeline.
type Stage string

const (
	StageIncoming   Stage = "incoming"
	StageClassified Stage = "classified"
	StageExtracted  Stage = "extracted"
	StageFinalized  Stage = "finalized"
	StageRejected   Stage = "rejected"
)

var stageOrder = map[Stage]int{
	StageIncoming:   0,
	StageClassified: 1,
	StageExtracted:  2,
	StageFinalized:  3,
}

var (
	ErrTypeAlreadySet = errors.New("document type already assigned")
	ErrStageBackwards = errors.New("stage cannot move backwards")
	ErrDocumentClosed = errors.New("document is rejected")
)

// Document is one intake PDF and everything learned about it.
type Document struct {
	ID          string
	IntakeName  string
	SourcePath  string
	ArchivePath string
	Type        DocType
	Stage       Stage
	Fields      Record

	Renamed          bool
	NotRenamedReason string
}

// New creates a document for a freshly discovered intake file.
func New(path string) *Document {
	return &Document{
		ID:         uuid.NewString(),
		IntakeName: filepath.Base(path),
		SourcePath: path,
		Stage:      StageIncoming,
	}
}

// Stem returns the current file name without extension.
func (d *Document) Stem() string {
	base := filepath.Base(d.SourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SetType assigns the classification exactly once.
func (d *Document) SetType(t DocType) error {
	if d.Type != "" {
		return fmt.Errorf("%w: %s", ErrTypeAlreadySet, d.Type)
	}
	d.Type = t
	d.Fields = NewRecord(t)
	return nil
}

// Advance moves the document forward. Rejection is allowed from any
// non-terminal stage; nothing leaves the rejected stage.
func (d *Document) Advance(s Stage) error {
	if d.Stage == StageRejected {
		return ErrDocumentClosed
	}
	if s == StageRejected {
		d.Stage = s
		return nil
	}
	if stageOrder[s] < stageOrder[d.Stage] {
		return fmt.Errorf("%w: %s -> %s", ErrStageBackwards, d.Stage, s)
	}
	d.Stage = s
	return nil
}

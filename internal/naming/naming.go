// Package naming gives extracted documents their canonical name
// {type}-{date_norm}-{reference} and moves them into the finalized area.
//
// A stem is unique across the finalized, staging and archive areas;
// collisions get a numeric suffix (-2, -3, ...). Nothing is overwritten:
// a move whose destination already exists is skipped and reported.
package naming

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/fsutil"
	"github.com/local/invoicebrain/internal/logger"
	"github.com/local/invoicebrain/internal/metrics"
	"github.com/local/invoicebrain/internal/sidecar"
)

// Reasons a document keeps its name.
const (
	ReasonMissingDate      = "missing date_norm"
	ReasonMissingReference = "missing reference"
)

// Artifacts moved by a transition.
const (
	ArtifactPDF     = "pdf"
	ArtifactSidecar = "sidecar"
	ArtifactArchive = "archive"
)

// BaseStem builds the canonical stem.
func BaseStem(t document.DocType, dateNorm, ref string) string {
	return fmt.Sprintf("%s-%s-%s", t, dateNorm, ref)
}

// IsNormalized reports whether stem is base or base with a numeric
// collision suffix.
func IsNormalized(stem, base string) bool {
	if stem == base {
		return true
	}
	suffix, ok := strings.CutPrefix(stem, base+"-")
	if !ok || suffix == "" {
		return false
	}
	n, err := strconv.Atoi(suffix)
	return err == nil && n >= 2
}

// Options locates the storage areas.
type Options struct {
	FinalDir   func(t document.DocType) string
	StagingDir func(t document.DocType) string
	ArchiveDir string

	LockWait  time.Duration
	LockStale time.Duration
}

// Move is one planned artifact rename.
type Move struct {
	Artifact string
	From     string
	To       string
	Applied  bool
	// Skipped holds the reason a move was not applied; empty when From == To.
	Skipped string
}

// Outcome reports what Finalize did.
type Outcome struct {
	Stem    string
	Renamed bool
	Reason  string
	Moves   []Move
}

// Mutations counts the moves that changed the file system.
func (o Outcome) Mutations() int {
	n := 0
	for _, m := range o.Moves {
		if m.Applied {
			n++
		}
	}
	return n
}

// Engine performs naming transitions.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.LockWait <= 0 {
		opts.LockWait = 30 * time.Second
	}
	return &Engine{opts: opts}
}

// ChooseStem returns current when it is already a form of base, otherwise
// the first of base, base-2, base-3, ... with no artifact in any area.
func (e *Engine) ChooseStem(t document.DocType, base, current string) string {
	if IsNormalized(current, base) {
		return current
	}
	for n := 1; ; n++ {
		cand := base
		if n > 1 {
			cand = fmt.Sprintf("%s-%d", base, n)
		}
		if e.free(t, cand) {
			return cand
		}
	}
}

func (e *Engine) free(t document.DocType, stem string) bool {
	for _, p := range []string{
		filepath.Join(e.opts.FinalDir(t), stem+".pdf"),
		filepath.Join(e.opts.FinalDir(t), stem+sidecar.Ext),
		filepath.Join(e.opts.StagingDir(t), stem+".pdf"),
		filepath.Join(e.opts.StagingDir(t), stem+sidecar.Ext),
		filepath.Join(e.opts.ArchiveDir, stem+".pdf"),
	} {
		if fsutil.Exists(p) {
			return false
		}
	}
	return true
}

func (e *Engine) plan(doc *document.Document, stem string) []Move {
	final := filepath.Join(e.opts.FinalDir(doc.Type), stem+".pdf")
	archiveFrom := doc.ArchivePath
	if archiveFrom == "" {
		archiveFrom = filepath.Join(e.opts.ArchiveDir, doc.Stem()+".pdf")
	}
	return []Move{
		{Artifact: ArtifactPDF, From: doc.SourcePath, To: final},
		{Artifact: ArtifactSidecar, From: sidecar.PathFor(doc.SourcePath), To: sidecar.PathFor(final)},
		{Artifact: ArtifactArchive, From: archiveFrom, To: filepath.Join(filepath.Dir(archiveFrom), stem+".pdf")},
	}
}

func trivial(moves []Move) bool {
	for _, m := range moves {
		if m.From != m.To {
			return false
		}
	}
	return true
}

// Finalize names doc canonically and moves its artifacts. Missing date or
// reference leaves every file in place and is not an error. Running it
// again on a finalized document changes nothing.
func (e *Engine) Finalize(ctx context.Context, doc *document.Document) (Outcome, error) {
	l := logger.Component("naming").With().Str("doc_id", doc.ID).Str("type", string(doc.Type)).Str("file", doc.SourcePath).Logger()
	if !doc.Type.Known() {
		return Outcome{}, fmt.Errorf("finalize %s: document type %q cannot be named", doc.ID, doc.Type)
	}

	dateNorm, ref := doc.Fields.DateNorm(), doc.Fields.Primary()
	switch {
	case dateNorm == nil:
		return e.notRenamed(doc, ReasonMissingDate), nil
	case ref == nil:
		return e.notRenamed(doc, ReasonMissingReference), nil
	}

	start := time.Now()
	base := BaseStem(doc.Type, *dateNorm, *ref)
	current := doc.Stem()

	out := Outcome{Renamed: true}
	if IsNormalized(current, base) {
		out.Stem = current
		if moves := e.plan(doc, current); trivial(moves) {
			out.Moves = moves
			if err := doc.Advance(document.StageFinalized); err != nil {
				return out, err
			}
			doc.Renamed = true
			l.Debug().Str("stem", current).Msg("already canonical")
			return out, nil
		}
	}

	lock, err := acquireLock(ctx, e.opts.FinalDir(doc.Type), e.opts.LockWait, e.opts.LockStale)
	if err != nil {
		metrics.ObserveStage("naming", "error", time.Since(start))
		return Outcome{}, err
	}
	defer lock.release()

	out.Stem = e.ChooseStem(doc.Type, base, current)
	if out.Stem != base && !IsNormalized(current, base) {
		metrics.IncCollision()
		l.Info().Str("base", base).Str("stem", out.Stem).Msg("canonical name taken; using suffix")
	}

	out.Moves = e.plan(doc, out.Stem)
	for i := range out.Moves {
		e.apply(&out.Moves[i], l)
	}

	pdf := out.Moves[0]
	if pdf.Applied {
		doc.SourcePath = pdf.To
	}
	if arch := out.Moves[2]; arch.Applied {
		doc.ArchivePath = arch.To
	}
	if err := doc.Advance(document.StageFinalized); err != nil {
		return out, err
	}
	doc.Renamed = true
	metrics.ObserveStage("naming", "ok", time.Since(start))
	l.Info().Str("stem", out.Stem).Int("moves", out.Mutations()).Msg("document finalized")
	return out, nil
}

func (e *Engine) notRenamed(doc *document.Document, reason string) Outcome {
	doc.Renamed = false
	doc.NotRenamedReason = reason
	log.Warn().Str("doc_id", doc.ID).Str("file", doc.SourcePath).Str("reason", reason).Msg("document not renamed")
	metrics.ObserveStage("naming", "not_renamed", 0)
	return Outcome{Stem: doc.Stem(), Reason: reason}
}

// apply performs one guarded move: an existing destination or a missing
// source skips it with a warning.
func (e *Engine) apply(m *Move, l zerolog.Logger) {
	if m.From == m.To {
		return
	}
	if fsutil.Exists(m.To) {
		m.Skipped = "destination exists"
		metrics.IncMoveSkipped(m.Artifact)
		l.Warn().Str("artifact", m.Artifact).Str("from", m.From).Str("to", m.To).Msg("destination exists; move skipped")
		return
	}
	if !fsutil.Exists(m.From) {
		m.Skipped = "source missing"
		l.Warn().Str("artifact", m.Artifact).Str("from", m.From).Msg("source missing; move skipped")
		return
	}
	if err := fsutil.Move(m.From, m.To); err != nil {
		if errors.Is(err, os.ErrExist) {
			m.Skipped = "destination exists"
			metrics.IncMoveSkipped(m.Artifact)
		} else {
			m.Skipped = err.Error()
		}
		l.Warn().Err(err).Str("artifact", m.Artifact).Str("from", m.From).Str("to", m.To).Msg("move failed")
		return
	}
	m.Applied = true
}

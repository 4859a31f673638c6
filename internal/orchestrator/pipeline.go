package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/invoicebrain/internal/classify"
	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/metrics"
	"github.com/local/invoicebrain/internal/naming"
)

// Process runs one intake file through the whole pipeline. UNKNOWN
// documents stop after classification. The returned document reflects
// how far processing got, also when an error is returned.
func (o *Orchestrator) Process(ctx context.Context, path string) (*document.Document, error) {
	doc := document.New(path)
	start := time.Now()
	l := log.With().Str("doc_id", doc.ID).Str("file", doc.IntakeName).Logger()

	if err := o.checkInput(path); err != nil {
		metrics.ObserveStage("intake", "rejected", time.Since(start))
		l.Error().Err(err).Msg("input rejected")
		return doc, err
	}
	o.setStatus(ctx, doc, &start, "processing started")

	if err := o.deps.Classifier.Run(ctx, doc); err != nil {
		if errors.Is(err, classify.ErrUnreadable) {
			err = &InputError{Path: path, Reason: "unreadable PDF", Err: err}
		} else {
			err = &StageError{Stage: "classify", Path: path, Err: err}
		}
		return doc, o.reject(ctx, doc, &start, l, err)
	}

	if doc.Type == document.TypeUnknown {
		o.record(ctx, doc, l)
		o.setStatus(ctx, doc, &start, "unclassified; archived for manual review")
		l.Warn().Str("archive", doc.ArchivePath).Msg("document type unknown")
		return doc, nil
	}
	return doc, o.finish(ctx, doc, &start, l)
}

// FinalizeStaged re-runs extraction and naming on a PDF already in a
// staging area, e.g. after fixing a region setting.
func (o *Orchestrator) FinalizeStaged(ctx context.Context, path string, t document.DocType, archiveDir string) (*document.Document, error) {
	doc := document.New(path)
	start := time.Now()
	l := log.With().Str("doc_id", doc.ID).Str("file", doc.IntakeName).Str("type", string(t)).Logger()

	if !t.Known() {
		return doc, &InputError{Path: path, Reason: fmt.Sprintf("document type %q cannot be finalized", t)}
	}
	if err := o.checkInput(path); err != nil {
		return doc, err
	}
	if err := doc.SetType(t); err != nil {
		return doc, err
	}
	if archived := filepath.Join(archiveDir, doc.Stem()+".pdf"); archiveDir != "" {
		doc.ArchivePath = archived
	}
	if err := doc.Advance(document.StageClassified); err != nil {
		return doc, err
	}
	return doc, o.finish(ctx, doc, &start, l)
}

// finish runs extraction and naming on a classified PO/RO document.
func (o *Orchestrator) finish(ctx context.Context, doc *document.Document, start *time.Time, l zerolog.Logger) error {
	o.setStatus(ctx, doc, start, "extracting fields")
	if err := o.deps.Extractor.Run(ctx, doc); err != nil {
		return o.reject(ctx, doc, start, l, &StageError{Stage: "extract", Path: doc.SourcePath, Err: err})
	}
	if tot := doc.Fields.Totals; !tot.Plausible(o.opts.TotalsTolerance) {
		metrics.IncImplausible(string(doc.Type))
		l.Warn().
			Float64("total_ht", *tot.HT).
			Float64("total_tax", *tot.Tax).
			Float64("total_ttc", *tot.TTC).
			Msg("totals do not add up; values kept as extracted")
	}

	out, err := o.deps.Namer.Finalize(ctx, doc)
	if err != nil {
		return o.reject(ctx, doc, start, l, &StageError{Stage: "naming", Path: doc.SourcePath, Err: err})
	}
	o.record(ctx, doc, l)

	msg := "finalized as " + out.Stem
	if !out.Renamed {
		msg = "not renamed: " + out.Reason
	} else if err := o.deps.Mirror.MirrorDocument(ctx, doc); err != nil {
		l.Warn().Err(err).Msg("mirror upload failed")
	}
	for _, m := range out.Moves {
		if m.Skipped != "" {
			msg += fmt.Sprintf("; %s move skipped (%s)", m.Artifact, m.Skipped)
		}
	}

	end := time.Now()
	o.setStatusDone(ctx, doc, start, &end, msg, out)
	metrics.ObserveStage("pipeline", resultLabel(out), time.Since(*start))
	l.Info().Str("type", string(doc.Type)).Str("stem", out.Stem).Bool("renamed", out.Renamed).Msg("document processed")
	return nil
}

func resultLabel(out naming.Outcome) string {
	if out.Renamed {
		return "finalized"
	}
	return "not_renamed"
}

func (o *Orchestrator) checkInput(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return &InputError{Path: path, Reason: "cannot stat file", Err: err}
	}
	if st.IsDir() {
		return &InputError{Path: path, Reason: "is a directory"}
	}
	ok, err := o.deps.Detector.IsPDF(path)
	if err != nil {
		return &InputError{Path: path, Reason: "cannot read file", Err: err}
	}
	if !ok {
		return &InputError{Path: path, Reason: "not a PDF"}
	}
	return nil
}

func (o *Orchestrator) reject(ctx context.Context, doc *document.Document, start *time.Time, l zerolog.Logger, err error) error {
	stage := FailedStage(err)
	if stage == "" {
		stage = "classify"
	}
	metrics.ObserveStage(stage, "error", time.Since(*start))
	_ = doc.Advance(document.StageRejected)
	end := time.Now()
	o.setStatusDone(ctx, doc, start, &end, err.Error(), naming.Outcome{})
	l.Error().Err(err).Str("stage", stage).Msg("document failed")
	return err
}

func (o *Orchestrator) record(ctx context.Context, doc *document.Document, l zerolog.Logger) {
	if err := o.deps.Registry.Record(ctx, doc); err != nil {
		l.Warn().Err(err).Msg("registry update failed")
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, doc *document.Document, start *time.Time, msg string) {
	o.setStatusDone(ctx, doc, start, nil, msg, naming.Outcome{})
}

func (o *Orchestrator) setStatusDone(ctx context.Context, doc *document.Document, start, end *time.Time, msg string, out naming.Outcome) {
	st := Status{
		Stage:      string(doc.Stage),
		Type:       string(doc.Type),
		Message:    msg,
		File:       doc.SourcePath,
		Stem:       out.Stem,
		IntakeName: doc.IntakeName,
		Start:      start,
		End:        end,
	}
	if missing := doc.Fields.Missing(); doc.Type.Known() && len(missing) > 0 {
		st.Metadata = map[string]any{"missing_fields": strings.Join(missing, ",")}
	}
	if err := o.deps.Status.Set(ctx, doc.ID, st); err != nil {
		log.Debug().Err(err).Str("doc_id", doc.ID).Msg("status update failed")
	}
}

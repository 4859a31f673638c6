package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/filetype"
	"github.com/local/invoicebrain/internal/metrics"
)

// Scan lists the PDF files of dir (extension match, case-insensitive),
// sorted by name.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan intake %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && filetype.HasPDFExtension(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// WatchState is the set of intake paths already handed to the pipeline
// during one Watch call. It is not persisted.
type WatchState struct {
	seen map[string]struct{}
}

func NewWatchState() *WatchState {
	return &WatchState{seen: map[string]struct{}{}}
}

// Fresh returns the paths of listing not seen in the previous pass.
func (s *WatchState) Fresh(listing []string) []string {
	var out []string
	for _, p := range listing {
		if _, ok := s.seen[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// Replace makes listing the new seen set.
func (s *WatchState) Replace(listing []string) {
	next := make(map[string]struct{}, len(listing))
	for _, p := range listing {
		next[p] = struct{}{}
	}
	s.seen = next
}

// Seen reports whether path was part of the last listing.
func (s *WatchState) Seen(path string) bool {
	_, ok := s.seen[path]
	return ok
}

// BatchResult summarizes one pass over the intake folder.
type BatchResult struct {
	Processed  int
	Failed     int
	Unknown    int
	Finalized  int
	NotRenamed int
}

func (b *BatchResult) add(doc *document.Document, err error) {
	b.Processed++
	switch {
	case err != nil:
		b.Failed++
	case doc.Type == document.TypeUnknown:
		b.Unknown++
	case doc.Stage == document.StageFinalized:
		b.Finalized++
	default:
		b.NotRenamed++
	}
}

// processAll runs each path in order; a failure never stops the batch.
func (o *Orchestrator) processAll(ctx context.Context, paths []string) BatchResult {
	var res BatchResult
	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		doc, err := o.Process(ctx, p)
		res.add(doc, err)
		if err != nil {
			metrics.ObserveStage("pipeline", "error", 0)
			log.Warn().Err(err).Str("file", p).Bool("input_error", IsInputError(err)).Msg("skipping document")
		}
	}
	return res
}

// RunOnce processes everything currently in the intake folder.
func (o *Orchestrator) RunOnce(ctx context.Context) (BatchResult, error) {
	paths, err := Scan(o.opts.IntakeDir)
	if err != nil {
		return BatchResult{}, &InputError{Path: o.opts.IntakeDir, Reason: "intake directory unreadable", Err: err}
	}
	metrics.SetIntakePending(len(paths))
	res := o.processAll(ctx, paths)
	metrics.SetIntakePending(0)
	log.Info().
		Int("processed", res.Processed).
		Int("failed", res.Failed).
		Int("unknown", res.Unknown).
		Int("finalized", res.Finalized).
		Int("not_renamed", res.NotRenamed).
		Msg("batch complete")
	return res, nil
}

// Watch polls the intake folder until ctx is cancelled. The first pass
// processes every file already present; later passes only new names.
// An intake folder that cannot be listed at startup is an input error.
func (o *Orchestrator) Watch(ctx context.Context) error {
	if _, err := Scan(o.opts.IntakeDir); err != nil {
		return &InputError{Path: o.opts.IntakeDir, Reason: "intake directory unreadable", Err: err}
	}
	if n := CleanupTemps(o.opts.TempDirs, time.Hour); n > 0 {
		log.Info().Int("removed", n).Msg("removed abandoned temp files")
	}
	state := NewWatchState()
	log.Info().Str("intake", o.opts.IntakeDir).Dur("interval", o.opts.PollInterval).Msg("watching intake folder")

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()
	for {
		o.pass(ctx, state)
		select {
		case <-ctx.Done():
			log.Info().Msg("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) pass(ctx context.Context, state *WatchState) {
	listing, err := Scan(o.opts.IntakeDir)
	if err != nil {
		log.Error().Err(err).Msg("intake scan failed")
		return
	}
	fresh := state.Fresh(listing)
	metrics.SetIntakePending(len(fresh))
	if len(fresh) > 0 {
		res := o.processAll(ctx, fresh)
		log.Info().Int("processed", res.Processed).Int("failed", res.Failed).Msg("intake pass complete")
	}
	metrics.SetIntakePending(0)
	state.Replace(listing)
}

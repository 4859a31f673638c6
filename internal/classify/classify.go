// Package classify tags an intake document as PO, RO or UNKNOWN from the
// title region of its first page, then moves it out of the intake folder.
package classify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/fsutil"
	"github.com/local/invoicebrain/internal/imagerender"
	"github.com/local/invoicebrain/internal/logger"
	"github.com/local/invoicebrain/internal/metrics"
	"github.com/local/invoicebrain/internal/ocr"
)

// ErrUnreadable marks a source PDF that could not be rasterized. The file
// is left in intake.
var ErrUnreadable = errors.New("document could not be rasterized")

// Title markers, checked in order.
var markers = []struct {
	phrase  string
	docType document.DocType
}{
	{"BON DE COMMANDE", document.TypePO},
	{"BON DE RECEPTION", document.TypeRO},
}

var accentFold = strings.NewReplacer("É", "E", "È", "E", "Ê", "E")

// Classify matches the title text against the known markers. The first
// marker found wins; no marker yields UNKNOWN.
func Classify(text string) document.DocType {
	norm := strings.Join(strings.Fields(strings.ToUpper(text)), " ")
	norm = accentFold.Replace(norm)
	for _, m := range markers {
		if strings.Contains(norm, m.phrase) {
			return m.docType
		}
	}
	return document.TypeUnknown
}

// Options configures a Classifier.
type Options struct {
	Title      imagerender.Region
	DPI        int
	Language   string
	ArchiveDir string
	// StagingDir returns the staging directory of a known type.
	StagingDir func(t document.DocType) string

	Now   func() time.Time
	NewID func() string
}

// Classifier runs the classification stage.
type Classifier struct {
	raster imagerender.Rasterizer
	engine ocr.Engine
	opts   Options
}

// New wires a Classifier.
func New(raster imagerender.Rasterizer, engine ocr.Engine, opts Options) *Classifier {
	if opts.DPI <= 0 {
		opts.DPI = 200
	}
	if opts.Language == "" {
		opts.Language = "fra+eng"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Classifier{raster: raster, engine: engine, opts: opts}
}

// ArchiveName is the unique name an intake file receives in the archive.
func (c *Classifier) ArchiveName(t document.DocType) string {
	id := strings.ReplaceAll(c.opts.NewID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s-%s.pdf", t, c.opts.Now().Format("20060102"), id)
}

// Run classifies doc and relocates it. The intake file is always moved to
// the archive; PO and RO documents also get a copy in their staging area,
// which becomes the document's working file.
func (c *Classifier) Run(ctx context.Context, doc *document.Document) error {
	start := time.Now()
	l := logger.Component("classify").With().Str("doc_id", doc.ID).Str("file", doc.IntakeName).Logger()

	img, err := c.raster.RenderRegion(doc.SourcePath, 1, c.opts.DPI, c.opts.Title)
	if err != nil {
		metrics.ObserveStage("classify", "error", time.Since(start))
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	text, err := c.engine.Recognize(ctx, img, ocr.Options{Language: c.opts.Language, PageSegMode: ocr.PSMAuto})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.Warn().Err(err).Msg("title OCR failed; classifying as UNKNOWN")
		text = ""
	}
	docType := Classify(text)

	archived := filepath.Join(c.opts.ArchiveDir, c.ArchiveName(docType))
	if err := fsutil.Move(doc.SourcePath, archived); err != nil {
		metrics.ObserveStage("classify", "error", time.Since(start))
		return fmt.Errorf("archive %s: %w", doc.IntakeName, err)
	}
	doc.ArchivePath = archived
	doc.SourcePath = archived

	if docType.Known() {
		staged := filepath.Join(c.opts.StagingDir(docType), filepath.Base(archived))
		if err := fsutil.Copy(archived, staged); err != nil {
			// The original is safe in the archive; the document stops here.
			metrics.ObserveStage("classify", "error", time.Since(start))
			return fmt.Errorf("stage %s: %w", filepath.Base(archived), err)
		}
		doc.SourcePath = staged
	}

	if err := doc.SetType(docType); err != nil {
		return err
	}
	if err := doc.Advance(document.StageClassified); err != nil {
		return err
	}
	metrics.IncClassified(string(docType))
	metrics.ObserveStage("classify", "ok", time.Since(start))
	l.Info().Str("type", string(docType)).Str("archive", archived).Str("working", doc.SourcePath).Msg("document classified")
	return nil
}

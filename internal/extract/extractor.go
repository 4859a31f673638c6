package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/imagerender"
	"github.com/local/invoicebrain/internal/logger"
	"github.com/local/invoicebrain/internal/metrics"
	"github.com/local/invoicebrain/internal/ocr"
	"github.com/local/invoicebrain/internal/pdfdoc"
	"github.com/local/invoicebrain/internal/sidecar"
)

// Layout locates the header and footer blocks of one document type.
type Layout struct {
	Header imagerender.Region
	Footer imagerender.Region
}

// Options configures an Extractor.
type Options struct {
	Layouts  map[document.DocType]Layout
	DPI      int
	Language string
	// PageCount returns the number of pages of a PDF. Defaults to pdfdoc.PageCount.
	PageCount func(path string) (int, error)
}

// Extractor renders the header and footer regions of a classified
// document, recognizes them and fills the document's field record.
type Extractor struct {
	raster imagerender.Rasterizer
	engine ocr.Engine
	opts   Options
}

// NewExtractor wires an Extractor.
func NewExtractor(raster imagerender.Rasterizer, engine ocr.Engine, opts Options) *Extractor {
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.Language == "" {
		opts.Language = "fra+eng"
	}
	if opts.PageCount == nil {
		opts.PageCount = pdfdoc.PageCount
	}
	return &Extractor{raster: raster, engine: engine, opts: opts}
}

// Run extracts the fields of doc and merges them into the sidecar next to the
// working PDF. Region failures leave that region's fields unset; the only
// errors returned are sidecar write failures and invalid input.
func (e *Extractor) Run(ctx context.Context, doc *document.Document) error {
	if !doc.Type.Known() {
		return fmt.Errorf("extract %s: document type %q has no layout", doc.ID, doc.Type)
	}
	layout, ok := e.opts.Layouts[doc.Type]
	if !ok {
		return fmt.Errorf("extract %s: no layout configured for %s", doc.ID, doc.Type)
	}
	start := time.Now()
	l := logger.Component("extract").With().Str("doc_id", doc.ID).Str("type", string(doc.Type)).Str("file", doc.SourcePath).Logger()

	headerText := e.recognize(ctx, doc.SourcePath, 1, layout.Header, "header")
	rec, trace := ParseHeader(doc.Type, headerText)

	last := 1
	if n, err := e.opts.PageCount(doc.SourcePath); err != nil {
		l.Warn().Err(err).Msg("page count failed; reading totals from page 1")
	} else if n > 0 {
		last = n
	}
	footerText := e.recognize(ctx, doc.SourcePath, last, layout.Footer, "footer")
	totals, footerTrace := ParseFooter(footerText)
	rec.Totals = totals
	for k, v := range footerTrace {
		trace[k] = v
	}

	path := sidecar.PathFor(doc.SourcePath)
	if prior, err := sidecar.Read(path); err == nil {
		// Values from an earlier pass win over this one.
		for _, c := range doc.Fields.Fill(sidecar.Load(doc.Type, prior)) {
			l.Warn().Str("field", c.Field).Str("kept", c.Kept).Str("rejected", c.Rejected).Msg("sidecar value differs from document; keeping document value")
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		l.Warn().Err(err).Msg("existing sidecar unreadable; it will be rewritten")
	}
	for _, c := range doc.Fields.Fill(rec) {
		l.Warn().Str("field", c.Field).Str("kept", c.Kept).Str("rejected", c.Rejected).Msg("conflicting value ignored")
	}
	for field, strategy := range trace {
		l.Debug().Str("field", field).Str("strategy", strategy).Msg("field resolved")
	}
	for _, name := range doc.Fields.Missing() {
		metrics.IncFieldMissing(string(doc.Type), name)
	}

	changed, err := sidecar.Upsert(path, sidecar.Rows(doc.Fields))
	if err != nil {
		metrics.ObserveStage("extract", "error", time.Since(start))
		return err
	}
	if err := doc.Advance(document.StageExtracted); err != nil {
		return err
	}
	metrics.ObserveStage("extract", "ok", time.Since(start))
	l.Info().Bool("sidecar_changed", changed).Strs("missing", doc.Fields.Missing()).Msg("fields extracted")
	return nil
}

// recognize renders and OCRs one region. Any failure yields empty text.
func (e *Extractor) recognize(ctx context.Context, path string, page int, region imagerender.Region, name string) string {
	img, err := e.raster.RenderRegion(path, page, e.opts.DPI, region)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Str("region", name).Int("page", page).Msg("region rasterization failed")
		return ""
	}
	text, err := e.engine.Recognize(ctx, img, ocr.Options{Language: e.opts.Language, PageSegMode: ocr.PSMSingleBlock})
	if err != nil {
		log.Warn().Err(err).Str("file", path).Str("region", name).Msg("region OCR failed")
		return ""
	}
	return text
}

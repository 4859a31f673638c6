// Package pdfdoc opens PDF files for rasterization and counts their pages.
package pdfdoc

import (
	"errors"
	"fmt"
	"image"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// Doc abstracts an open PDF document that can render pages.
type Doc interface {
	NumPage() int
	// ImageDPI renders the zero-based page i at the given resolution.
	ImageDPI(i int, dpi float64) (image.Image, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Doc.
type Opener interface {
	Open(path string) (Doc, error)
}

// defaultOpener is provided in doc_open_fitz.go using go-fitz.
var defaultOpener Opener

// setDefaultOpener allows swapping the default opener for alternate backends.
func setDefaultOpener(o Opener) { defaultOpener = o }

// ErrNoOpener is returned when no PDF backend is configured.
var ErrNoOpener = errors.New("no PDF opener configured")

// Default returns the configured opener.
func Default() Opener { return defaultOpener }

// PageCount returns the number of pages of the PDF at path. pdfcpu reads the
// page tree; when it rejects the file the rendering backend is asked instead.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err == nil && n > 0 {
		return n, nil
	}
	log.Debug().Err(err).Str("file", path).Msg("pdfcpu page count failed; asking renderer")
	return pageCountWith(defaultOpener, path)
}

func pageCountWith(o Opener, path string) (int, error) {
	if o == nil {
		return 0, ErrNoOpener
	}
	d, err := o.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer d.Close()
	n := d.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("pdf has no pages: %s", path)
	}
	return n, nil
}

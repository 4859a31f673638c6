// Package ocr recognizes text in rasterized page regions.
//
// The Tesseract engine (gosseract) needs cgo and an installed Tesseract,
// so it is only compiled with the "ocr" build tag:
//
//	go build -tags ocr ./cmd/app
//
// Without the tag NewEngine returns ErrOCRNotEnabled.
package ocr

import (
	"context"
	"errors"
	"strings"
)

// ErrOCRNotEnabled is returned when the binary was built without OCR support.
var ErrOCRNotEnabled = errors.New("OCR support not enabled (build with -tags ocr)")

// Page segmentation modes used by the pipeline (Tesseract numbering).
const (
	PSMAuto        = 3
	PSMSingleBlock = 6
)

// Options tunes one recognition call.
type Options struct {
	// Language is a "+" separated Tesseract language list, e.g. "fra+eng".
	Language    string
	PageSegMode int
}

// Engine turns an encoded image into best-effort text. Results carry no
// guarantee of correctness or stable formatting.
type Engine interface {
	Recognize(ctx context.Context, image []byte, opts Options) (string, error)
}

// Config configures NewEngine.
type Config struct {
	TessdataPrefix string
}

// languages splits "fra+eng" into its parts.
func languages(lang string) []string {
	var out []string
	for _, l := range strings.Split(lang, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		out = []string{"eng"}
	}
	return out
}

// cleanText normalizes line endings and trims the recognized text.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

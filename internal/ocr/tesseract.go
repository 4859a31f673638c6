//go:build ocr

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Enabled reports whether this build carries the Tesseract engine.
const Enabled = true

// Tesseract recognizes text with a fresh gosseract client per call;
// clients are not safe to share.
type Tesseract struct {
	tessdata string
}

// NewEngine returns the Tesseract engine.
func NewEngine(cfg Config) (Engine, error) {
	return &Tesseract{tessdata: cfg.TessdataPrefix}, nil
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", fmt.Errorf("no image content provided for OCR")
	}

	client := gosseract.NewClient()
	defer client.Close()
	if t.tessdata != "" {
		client.TessdataPrefix = t.tessdata
	}

	if err := client.SetLanguage(languages(opts.Language)...); err != nil {
		return "", fmt.Errorf("failed to set OCR language %q: %w", opts.Language, err)
	}
	psm := opts.PageSegMode
	if psm == 0 {
		psm = PSMAuto
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return cleanText(text), nil
}

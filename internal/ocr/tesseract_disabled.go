//go:build !ocr

package ocr

// Enabled reports whether this build carries the Tesseract engine.
const Enabled = false

// NewEngine reports that OCR was not compiled in.
func NewEngine(Config) (Engine, error) {
	return nil, ErrOCRNotEnabled
}

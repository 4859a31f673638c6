package statuscheck

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "incoming")
	c := New(Options{
		Redis:      pinger{err: errors.New("connection refused")},
		Registry:   pinger{},
		Dirs:       map[string]string{"intake": dir},
		OCREnabled: true,
	})
	c.lookPath = func(string) (string, error) { return "/usr/bin/tesseract", nil }

	s := c.Summary(context.Background())
	if s.Redis.OK || s.Redis.Message != "connection refused" {
		t.Errorf("redis = %+v", s.Redis)
	}
	if s.S3.OK || s.S3.Message != "not configured" {
		t.Errorf("s3 = %+v", s.S3)
	}
	if !s.Registry.OK || !s.Tesseract.OK || !s.Dirs["intake"].OK {
		t.Errorf("summary = %+v", s)
	}
	if !s.Healthy() {
		t.Error("optional Redis failure should not make the pipeline unhealthy")
	}
}

func TestSummaryWithoutOCR(t *testing.T) {
	c := New(Options{Registry: pinger{}})
	s := c.Summary(context.Background())
	if s.Tesseract.OK || s.Healthy() {
		t.Errorf("tesseract = %+v", s.Tesseract)
	}
	if !strings.Contains(s.Tesseract.Message, "-tags ocr") {
		t.Errorf("message should name the build tag: %q", s.Tesseract.Message)
	}
}

func TestTrimError(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	if got := trimError(errors.New(string(long))); len(got) != 120 {
		t.Errorf("len = %d", len(got))
	}
	if trimError(nil) != "" {
		t.Error("nil error")
	}
}

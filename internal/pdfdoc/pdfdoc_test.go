package pdfdoc

import (
	"errors"
	"image"
	"testing"
)

type stubDoc struct{ pages int }

func (d stubDoc) NumPage() int { return d.pages }
func (d stubDoc) ImageDPI(int, float64) (image.Image, error) { return nil, errors.New("unused") }
func (d stubDoc) Close() error { return nil }

type stubOpener struct {
	doc Doc
	err error
}

func (o stubOpener) Open(string) (Doc, error) { return o.doc, o.err }

func TestPageCountWith(t *testing.T) {
	n, err := pageCountWith(stubOpener{doc: stubDoc{pages: 3}}, "x.pdf")
	if err != nil || n != 3 {
		t.Fatalf("pageCountWith = %d, %v", n, err)
	}
	if _, err := pageCountWith(stubOpener{doc: stubDoc{}}, "x.pdf"); err == nil {
		t.Error("expected error for empty document")
	}
	if _, err := pageCountWith(stubOpener{err: errors.New("corrupt")}, "x.pdf"); err == nil {
		t.Error("expected open error")
	}
	if _, err := pageCountWith(nil, "x.pdf"); !errors.Is(err, ErrNoOpener) {
		t.Errorf("nil opener err = %v", err)
	}
}

func TestDefaultOpenerRegistered(t *testing.T) {
	if Default() == nil {
		t.Fatal("fitz opener not registered")
	}
}

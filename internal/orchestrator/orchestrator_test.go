package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/local/invoicebrain/internal/classify"
	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/extract"
	"github.com/local/invoicebrain/internal/fsutil"
	"github.com/local/invoicebrain/internal/imagerender"
	"github.com/local/invoicebrain/internal/naming"
	"github.com/local/invoicebrain/internal/ocr"
	"github.com/local/invoicebrain/internal/sidecar"
)

var (
	titleRegion  = imagerender.Region{Top: 0.10, Bottom: 0.30, Left: 0, Right: 0.72}
	headerRegion = imagerender.Region{Top: 0.15, Bottom: 0.30, Left: 0, Right: 0.60}
	footerRegion = imagerender.Region{Top: 0.70, Bottom: 0.78, Left: 0.60, Right: 0.98}
)

// scriptedRaster encodes "<file>|<region>" as the image so scriptedOCR can
// answer per document and region.
type scriptedRaster struct{}

func (scriptedRaster) RenderRegion(path string, _, _ int, region imagerender.Region) ([]byte, error) {
	name := "footer"
	switch region {
	case titleRegion:
		name = "title"
	case headerRegion:
		name = "header"
	}
	return []byte(filepath.Base(path) + "|" + name), nil
}

type scriptedOCR struct {
	mu    sync.Mutex
	texts map[string]map[string]string // intake name -> region -> text
	byArc map[string]string            // working file name -> intake name
}

func (s *scriptedOCR) Recognize(_ context.Context, img []byte, _ ocr.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := string(img)
	var file, region string
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == '|' {
			file, region = parts[:i], parts[i+1:]
			break
		}
	}
	if intake, ok := s.byArc[file]; ok {
		file = intake
	}
	return s.texts[file][region], nil
}

type env struct {
	root    string
	intake  string
	staging string
	archive string
	final   string
	orch    *Orchestrator
	ocr     *scriptedOCR
	status  *memStatus
	ids     int
}

type memStatus struct {
	mu    sync.Mutex
	m     map[string]Status
	names map[string]string
}

func (m *memStatus) Set(_ context.Context, id string, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[id] = st
	if st.IntakeName != "" {
		if m.names == nil {
			m.names = map[string]string{}
		}
		m.names[st.IntakeName] = id
	}
	return nil
}

func (m *memStatus) DocByIntakeName(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.names[name]
	return id, ok, nil
}

func (m *memStatus) Get(_ context.Context, id string) (Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.m[id]
	return st, ok, nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		root:    root,
		intake:  filepath.Join(root, "incoming"),
		staging: filepath.Join(root, "data"),
		archive: filepath.Join(root, "data", "processed"),
		final:   filepath.Join(root, "data", "final"),
		ocr:     &scriptedOCR{texts: map[string]map[string]string{}, byArc: map[string]string{}},
		status:  &memStatus{m: map[string]Status{}},
	}
	if err := os.MkdirAll(e.intake, 0o755); err != nil {
		t.Fatal(err)
	}
	stagingFor := func(t document.DocType) string { return filepath.Join(e.staging, string(t)+"_detected") }

	var current string
	cls := classify.New(scriptedRaster{}, e.ocr, classify.Options{
		Title:      titleRegion,
		ArchiveDir: e.archive,
		StagingDir: stagingFor,
		Now:        func() time.Time { return time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC) },
		NewID: func() string {
			e.ids++
			id := []byte("00000000")
			id[7] = byte('0' + e.ids)
			current = string(id)
			return current
		},
	})
	ext := extract.NewExtractor(scriptedRaster{}, e.ocr, extract.Options{
		Layouts: map[document.DocType]extract.Layout{
			document.TypePO: {Header: headerRegion, Footer: footerRegion},
			document.TypeRO: {Header: headerRegion, Footer: footerRegion},
		},
		PageCount: func(string) (int, error) { return 2, nil },
	})
	namer := naming.New(naming.Options{
		FinalDir:   func(t document.DocType) string { return filepath.Join(e.final, string(t)) },
		StagingDir: stagingFor,
		ArchiveDir: e.archive,
		LockWait:   time.Second,
	})
	e.orch = New(Dependencies{
		Classifier: &trackingClassifier{inner: cls, ocr: e.ocr},
		Extractor:  ext,
		Namer:      namer,
		Status:     e.status,
	}, Options{IntakeDir: e.intake, PollInterval: 10 * time.Millisecond})
	return e
}

// trackingClassifier teaches scriptedOCR which intake file an archived
// name came from, so later regions can be answered.
type trackingClassifier struct {
	inner *classify.Classifier
	ocr   *scriptedOCR
}

func (c *trackingClassifier) Run(ctx context.Context, doc *document.Document) error {
	if err := c.inner.Run(ctx, doc); err != nil {
		return err
	}
	c.ocr.mu.Lock()
	c.ocr.byArc[filepath.Base(doc.SourcePath)] = doc.IntakeName
	c.ocr.mu.Unlock()
	return nil
}

func (e *env) addPDF(t *testing.T, name string, regions map[string]string) string {
	t.Helper()
	p := filepath.Join(e.intake, name)
	if err := os.WriteFile(p, []byte("%PDF-1.4\n% "+name+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e.ocr.mu.Lock()
	e.ocr.texts[name] = regions
	e.ocr.mu.Unlock()
	return p
}

var poRegions = map[string]string{
	"title":  "BON DE COMMANDE",
	"header": "N° DAC/250000013\nDate : 15/03/2024",
	"footer": "Total HT 1000,00 Total TVA 200,00 Total TTC 1200,00",
}

func TestProcessPOEndToEnd(t *testing.T) {
	e := newEnv(t)
	src := e.addPDF(t, "scan001.pdf", poRegions)

	doc, err := e.orch.Process(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(e.final, "PO", "PO-20240315-DAC250000013.pdf")
	if doc.SourcePath != want || doc.Stage != document.StageFinalized {
		t.Fatalf("doc at %s stage %s", doc.SourcePath, doc.Stage)
	}
	rows, err := sidecar.Read(sidecar.PathFor(want))
	if err != nil {
		t.Fatal(err)
	}
	for field, v := range map[string]string{
		"order_number": "DAC250000013",
		"date_norm":    "20240315",
		"total_ht":     "1000.00",
		"total_tax":    "200.00",
		"total_ttc":    "1200.00",
	} {
		if got, _ := sidecar.Lookup(rows, field); got != v {
			t.Errorf("%s = %q, want %q", field, got, v)
		}
	}
	if !fsutil.Exists(filepath.Join(e.archive, "PO-20240315-DAC250000013.pdf")) {
		t.Error("archived original not renamed")
	}
	if fsutil.Exists(src) {
		t.Error("intake file still present")
	}
	st, ok, _ := e.status.Get(context.Background(), doc.ID)
	if !ok || st.Stage != string(document.StageFinalized) || st.Stem != "PO-20240315-DAC250000013" || st.End == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestProcessUnknown(t *testing.T) {
	e := newEnv(t)
	src := e.addPDF(t, "letter.pdf", map[string]string{"title": "COURRIER"})
	doc, err := e.orch.Process(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Type != document.TypeUnknown || doc.Stage != document.StageClassified {
		t.Fatalf("type %s stage %s", doc.Type, doc.Stage)
	}
	if fsutil.Exists(src) || !fsutil.Exists(doc.ArchivePath) {
		t.Error("UNKNOWN document not archived")
	}
	for _, dir := range []string{"PO_detected", "RO_detected"} {
		if fsutil.Exists(filepath.Join(e.staging, dir)) {
			t.Errorf("%s created for UNKNOWN document", dir)
		}
	}
}

func TestProcessNotRenamed(t *testing.T) {
	e := newEnv(t)
	src := e.addPDF(t, "ro.pdf", map[string]string{
		"title":  "BON DE RECEPTION",
		"header": "RECEPTION N° COMMANDE 4500012345",
	})
	doc, err := e.orch.Process(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Renamed || doc.NotRenamedReason != naming.ReasonMissingDate {
		t.Errorf("renamed %v reason %q", doc.Renamed, doc.NotRenamedReason)
	}
	if filepath.Dir(doc.SourcePath) != filepath.Join(e.staging, "RO_detected") {
		t.Errorf("document left at %s", doc.SourcePath)
	}
	if !fsutil.Exists(sidecar.PathFor(doc.SourcePath)) {
		t.Error("sidecar not persisted under the original name")
	}
}

func TestRunOnceSkipsFailures(t *testing.T) {
	e := newEnv(t)
	bad := filepath.Join(e.intake, "a-broken.pdf")
	if err := os.WriteFile(bad, []byte("not a pdf at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	e.addPDF(t, "b-scan.PDF", poRegions)
	e.addPDF(t, "c-other.pdf", map[string]string{"title": "??"})
	if err := os.WriteFile(filepath.Join(e.intake, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := e.orch.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := BatchResult{Processed: 3, Failed: 1, Unknown: 1, Finalized: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if !fsutil.Exists(bad) {
		t.Error("rejected input should stay in intake")
	}
}

func TestProcessInputErrors(t *testing.T) {
	e := newEnv(t)
	_, err := e.orch.Process(context.Background(), filepath.Join(e.intake, "missing.pdf"))
	if !IsInputError(err) {
		t.Errorf("missing file: %v", err)
	}

	e.orch.deps.Classifier = failingClassifier{err: classify.ErrUnreadable}
	src := e.addPDF(t, "corrupt.pdf", nil)
	doc, err := e.orch.Process(context.Background(), src)
	if !IsInputError(err) || doc.Stage != document.StageRejected {
		t.Errorf("unreadable: %v (stage %s)", err, doc.Stage)
	}

	e.orch.deps.Classifier = failingClassifier{err: errors.New("disk full")}
	_, err = e.orch.Process(context.Background(), src)
	if IsInputError(err) || FailedStage(err) != "classify" {
		t.Errorf("stage error: %v", err)
	}
}

type failingClassifier struct{ err error }

func (f failingClassifier) Run(context.Context, *document.Document) error { return f.err }

func TestFinalizeStagedIsIdempotent(t *testing.T) {
	e := newEnv(t)
	src := e.addPDF(t, "scan.pdf", poRegions)
	doc, err := e.orch.Process(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	e.ocr.mu.Lock()
	e.ocr.byArc[filepath.Base(doc.SourcePath)] = "scan.pdf"
	e.ocr.mu.Unlock()

	again, err := e.orch.FinalizeStaged(context.Background(), doc.SourcePath, document.TypePO, e.archive)
	if err != nil {
		t.Fatal(err)
	}
	if again.SourcePath != doc.SourcePath || again.Stage != document.StageFinalized {
		t.Errorf("re-run moved document to %s (%s)", again.SourcePath, again.Stage)
	}
	if _, err := e.orch.FinalizeStaged(context.Background(), doc.SourcePath, document.TypeUnknown, ""); !IsInputError(err) {
		t.Errorf("UNKNOWN finalize err = %v", err)
	}
}

func TestWatchRejectsMissingIntake(t *testing.T) {
	e := newEnv(t)
	if err := os.RemoveAll(e.intake); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := e.orch.Watch(ctx)
	if !IsInputError(err) {
		t.Fatalf("Watch err = %v, want input error", err)
	}
	if ctx.Err() != nil {
		t.Error("Watch should fail at startup, not after the deadline")
	}
	if _, err := e.orch.RunOnce(context.Background()); !IsInputError(err) {
		t.Errorf("RunOnce err = %v, want input error", err)
	}
}

func TestWatchRejectsFileAsIntake(t *testing.T) {
	file := filepath.Join(t.TempDir(), "incoming")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	o := New(Dependencies{}, Options{IntakeDir: file, PollInterval: 20 * time.Millisecond})
	if err := o.Watch(context.Background()); !IsInputError(err) {
		t.Errorf("Watch err = %v, want input error", err)
	}
}

func TestWatchProcessesNewFiles(t *testing.T) {
	e := newEnv(t)
	e.addPDF(t, "first.pdf", poRegions)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.orch.Watch(ctx) }()

	waitEmpty := func() {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if files, _ := Scan(e.intake); len(files) == 0 {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatal("intake not drained")
	}
	waitEmpty()
	e.addPDF(t, "second.pdf", map[string]string{"title": "nothing"})
	waitEmpty()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestWatchState(t *testing.T) {
	s := NewWatchState()
	first := []string{"a.pdf", "b.pdf"}
	if got := s.Fresh(first); len(got) != 2 {
		t.Fatalf("fresh = %v", got)
	}
	s.Replace(first)
	if got := s.Fresh([]string{"a.pdf", "b.pdf", "c.pdf"}); len(got) != 1 || got[0] != "c.pdf" {
		t.Errorf("fresh = %v", got)
	}
	s.Replace([]string{"c.pdf"})
	if s.Seen("a.pdf") || !s.Seen("c.pdf") {
		t.Error("seen set not replaced")
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.PDF", "a.pdf", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "d.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || filepath.Base(got[0]) != "a.pdf" || filepath.Base(got[1]) != "b.PDF" {
		t.Errorf("Scan = %v", got)
	}
	if _, err := Scan(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing dir should error")
	}
}

func TestStatusRoute(t *testing.T) {
	e := newEnv(t)
	_ = e.status.Set(context.Background(), "doc-1", Status{Stage: "finalized", Type: "PO", Stem: "PO-20240315-DAC1", IntakeName: "scan01.pdf"})
	mux := http.NewServeMux()
	e.orch.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/doc-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body statusResp
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.DocID != "doc-1" || body.Stem != "PO-20240315-DAC1" {
		t.Errorf("body = %+v", body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/intake/scan01.pdf", nil))
	body = statusResp{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.DocID != "doc-1" {
		t.Errorf("intake lookup = %d %+v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/intake/nope.pdf", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown intake code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/summary", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("summary without checker = %d", rec.Code)
	}
}

func TestCleanupTemps(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".PO-1.csv-12345")
	keep := filepath.Join(dir, "PO-1.csv")
	lock := filepath.Join(dir, ".naming.lock")
	for _, p := range []string{stale, keep, lock} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	for _, p := range []string{stale, keep, lock} {
		_ = os.Chtimes(p, old, old)
	}
	if n := CleanupTemps([]string{dir, filepath.Join(dir, "missing")}, time.Hour); n != 1 {
		t.Errorf("removed %d files", n)
	}
	if fsutil.Exists(stale) || !fsutil.Exists(keep) || !fsutil.Exists(lock) {
		t.Error("wrong files removed")
	}
}

// Package orchestrator drives intake documents through classification,
// extraction and naming, one document at a time.
package orchestrator

import (
    "context"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/local/invoicebrain/internal/document"
    "github.com/local/invoicebrain/internal/filetype"
    "github.com/local/invoicebrain/internal/metrics"
    "github.com/local/invoicebrain/internal/naming"
    "github.com/local/invoicebrain/internal/statuscheck"
)

// Classifier tags a document and moves it out of intake.
type Classifier interface {
    Run(ctx context.Context, doc *document.Document) error
}

// Extractor fills the field record of a classified document.
type Extractor interface {
    Run(ctx context.Context, doc *document.Document) error
}

// Namer gives a document its canonical name.
type Namer interface {
    Finalize(ctx context.Context, doc *document.Document) (naming.Outcome, error)
}

type Status struct {
    Stage      string
    Type       string
    Message    string
    File       string
    Stem       string
    IntakeName string
    Start      *time.Time
    End        *time.Time
    Metadata   map[string]any
}

type StatusStore interface {
    Set(ctx context.Context, docID string, st Status) error
    Get(ctx context.Context, docID string) (Status, bool, error)
}

// IntakeLookup is implemented by status stores that remember which
// document an intake file name became.
type IntakeLookup interface {
    DocByIntakeName(ctx context.Context, name string) (string, bool, error)
}

// Registry indexes processed documents.
type Registry interface {
    Record(ctx context.Context, doc *document.Document) error
}

// Mirror copies finalized artifacts to remote storage.
type Mirror interface {
    MirrorDocument(ctx context.Context, doc *document.Document) error
}

// Detector verifies file content.
type Detector interface {
    IsPDF(path string) (bool, error)
}

// HealthReporter produces the dependency summary served on /health/summary.
type HealthReporter interface {
    Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
    Classifier Classifier
    Extractor  Extractor
    Namer      Namer
    Status     StatusStore
    Registry   Registry
    Mirror     Mirror
    Detector   Detector
    Health     HealthReporter
}

// Options holds the pipeline settings that are not dependencies.
type Options struct {
    IntakeDir       string
    PollInterval    time.Duration
    TotalsTolerance float64
    // TempDirs are swept for abandoned temporary files when watching starts.
    TempDirs []string
}

type Orchestrator struct {
    deps Dependencies
    opts Options
}

// New wires an Orchestrator. Optional dependencies left nil are replaced
// by no-ops; Classifier, Extractor and Namer are required.
func New(deps Dependencies, opts Options) *Orchestrator {
    if deps.Status == nil { deps.Status = nopStatus{} }
    if deps.Registry == nil { deps.Registry = nopRegistry{} }
    if deps.Mirror == nil { deps.Mirror = nopMirror{} }
    if deps.Detector == nil { deps.Detector = filetype.New() }
    if opts.PollInterval <= 0 { opts.PollInterval = 5 * time.Second }
    if opts.TotalsTolerance <= 0 { opts.TotalsTolerance = 0.02 }
    return &Orchestrator{deps: deps, opts: opts}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request){ w.WriteHeader(http.StatusOK); _,_ = w.Write([]byte("ok")) })
    mux.Handle("/metrics", metrics.Handler())
    mux.HandleFunc("/status/", o.handleStatus)
    mux.HandleFunc("/health/summary", o.handleSummary)
}

type statusResp struct {
    DocID    string         `json:"doc_id"`
    Stage    string         `json:"stage"`
    Type     string         `json:"type,omitempty"`
    Message  string         `json:"message,omitempty"`
    File     string         `json:"file,omitempty"`
    Stem     string         `json:"stem,omitempty"`
    Start    *time.Time     `json:"start_time,omitempty"`
    End      *time.Time     `json:"end_time,omitempty"`
    Metadata map[string]any `json:"metadata,omitempty"`
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id := strings.TrimPrefix(r.URL.Path, "/status/")
    if name, ok := strings.CutPrefix(id, "intake/"); ok {
        lookup, ok := o.deps.Status.(IntakeLookup)
        if !ok { http.Error(w, "intake lookup not supported", http.StatusNotImplemented); return }
        if name == "" { http.Error(w, "missing intake file name", http.StatusBadRequest); return }
        docID, found, err := lookup.DocByIntakeName(r.Context(), name)
        if err != nil { http.Error(w, "status store unavailable", http.StatusServiceUnavailable); return }
        if !found { http.Error(w, "not found", http.StatusNotFound); return }
        id = docID
    }
    if id == "" { http.Error(w, "missing document id", http.StatusBadRequest); return }
    st, ok, err := o.deps.Status.Get(r.Context(), id)
    if err != nil { http.Error(w, "status store unavailable", http.StatusServiceUnavailable); return }
    if !ok { http.Error(w, "not found", http.StatusNotFound); return }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(statusResp{
        DocID: id, Stage: st.Stage, Type: st.Type, Message: st.Message, File: st.File,
        Stem: st.Stem, Start: st.Start, End: st.End, Metadata: st.Metadata,
    })
}

func (o *Orchestrator) handleSummary(w http.ResponseWriter, r *http.Request) {
    if o.deps.Health == nil { http.Error(w, "health checks not configured", http.StatusNotImplemented); return }
    s := o.deps.Health.Summary(r.Context())
    w.Header().Set("Content-Type", "application/json")
    if !s.Healthy() { w.WriteHeader(http.StatusServiceUnavailable) }
    _ = json.NewEncoder(w).Encode(s)
}

type nopStatus struct{}

func (nopStatus) Set(context.Context, string, Status) error { return nil }
func (nopStatus) Get(context.Context, string) (Status, bool, error) { return Status{}, false, nil }

type nopRegistry struct{}

func (nopRegistry) Record(context.Context, *document.Document) error { return nil }

type nopMirror struct{}

func (nopMirror) MirrorDocument(context.Context, *document.Document) error { return nil }

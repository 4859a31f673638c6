package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "os"
    "os/exec"
    "path/filepath"
    "time"
)

// Pinger is any dependency that can report reachability.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Checker aggregates health checks for the pipeline's dependencies.
type Checker struct {
    redis    Pinger
    s3       Pinger
    registry Pinger
    dirs     map[string]string
    ocr      bool
    lookPath func(string) (string, error)
}

// Options configures the Checker. Nil pingers report "not configured".
type Options struct {
    Redis    Pinger
    S3       Pinger
    Registry Pinger
    // Dirs maps a storage role (intake, staging, archive, final) to its path.
    Dirs       map[string]string
    OCREnabled bool
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis     Status            `json:"redis"`
    S3        Status            `json:"s3"`
    Registry  Status            `json:"registry"`
    Tesseract Status            `json:"tesseract"`
    Dirs      map[string]Status `json:"dirs"`
}

// Healthy reports whether everything required for processing is ready.
// Redis and S3 are optional and do not count.
func (s Summary) Healthy() bool {
    if !s.Tesseract.OK || !s.Registry.OK { return false }
    for _, d := range s.Dirs {
        if !d.OK { return false }
    }
    return true
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    return &Checker{
        redis:    opts.Redis,
        s3:       opts.S3,
        registry: opts.Registry,
        dirs:     opts.Dirs,
        ocr:      opts.OCREnabled,
        lookPath: exec.LookPath,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    s := Summary{
        Redis:     c.ping(ctx, c.redis, 2*time.Second),
        S3:        c.ping(ctx, c.s3, 5*time.Second),
        Registry:  c.ping(ctx, c.registry, 2*time.Second),
        Tesseract: c.checkTesseract(),
        Dirs:      make(map[string]Status, len(c.dirs)),
    }
    for role, dir := range c.dirs {
        s.Dirs[role] = checkDir(dir)
    }
    return s
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
    if p == nil {
        return Status{OK: false, Message: "not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    if err := p.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

// NoOCRMessage is reported for binaries built without the ocr tag.
const NoOCRMessage = "built without OCR support: rebuild with -tags ocr; watch, once, process and finalize cannot run"

func (c *Checker) checkTesseract() Status {
    if !c.ocr {
        return Status{OK: false, Message: NoOCRMessage}
    }
    if _, err := c.lookPath("tesseract"); err != nil {
        return Status{OK: false, Message: "Binary not found"}
    }
    return Status{OK: true, Message: "Available"}
}

// checkDir verifies the directory exists (creating it if needed) and is writable.
func checkDir(dir string) Status {
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    f, err := os.CreateTemp(dir, ".healthcheck-*")
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    name := f.Name()
    f.Close()
    os.Remove(name)
    return Status{OK: true, Message: fmt.Sprintf("Writable (%s)", filepath.Clean(dir))}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}

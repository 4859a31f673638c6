package main

import (
    "context"
    "encoding/json"
    "errors"
    "flag"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "path"
    "strings"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    cfgpkg "github.com/local/invoicebrain/internal/config"
    "github.com/local/invoicebrain/internal/document"
    "github.com/local/invoicebrain/internal/export"
    "github.com/local/invoicebrain/internal/fsutil"
    logpkg "github.com/local/invoicebrain/internal/logger"
    "github.com/local/invoicebrain/internal/metrics"
    "github.com/local/invoicebrain/internal/ocr"
    "github.com/local/invoicebrain/internal/registry"
    "github.com/local/invoicebrain/internal/storage"
)

const (
    exitOK      = 0
    exitInvalid = 1
    exitUsage   = 2
)

const usage = `usage: invoicebrain <command> [arguments]

commands:
  watch                          poll the intake directory (default)
  once                           process the current intake batch and exit
  process <file.pdf>             classify, extract and name one file
  finalize <staged.pdf> -type T  re-run extraction and naming on a staged PO or RO
  export -out report.xlsx        write the registry to a spreadsheet [-type T -from YYYYMMDD -to YYYYMMDD]
  fetch <key> -out file          download a mirrored artifact, decrypting it if needed
  health                         print the dependency summary

watch, once, process and finalize need OCR: build with -tags ocr and install Tesseract.
`

const noOCRWarning = `
WARNING: this binary was built without OCR support; watch, once, process and
finalize will refuse to start. Rebuild with: go build -tags ocr ./cmd/app
`

// usageText is the help output; it warns when OCR was not compiled in.
func usageText(ocrEnabled bool) string {
    if ocrEnabled { return usage }
    return usage + noOCRWarning
}

func main() {
    // A missing .env is normal outside development.
    _ = godotenv.Load()

    cfg := cfgpkg.FromEnv()
    if err := cfg.Validate(); err != nil {
        fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
        os.Exit(exitInvalid)
    }

    if err := logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        Service:      "invoicebrain",
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    }); err != nil {
        fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
        os.Exit(exitInvalid)
    }
    metrics.Init()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    code := run(ctx, cfg, os.Args[1:])
    stop()
    logpkg.Close()
    os.Exit(code)
}

func run(ctx context.Context, cfg cfgpkg.Config, args []string) int {
    cmd := "watch"
    if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
        cmd, args = args[0], args[1:]
    }

    switch cmd {
    case "watch":
        return cmdWatch(ctx, cfg, args)
    case "once":
        return cmdOnce(ctx, cfg, args)
    case "process":
        return cmdProcess(ctx, cfg, args)
    case "finalize":
        return cmdFinalize(ctx, cfg, args)
    case "export":
        return cmdExport(ctx, cfg, args)
    case "fetch":
        return cmdFetch(ctx, cfg, args)
    case "health":
        return cmdHealth(ctx, cfg, args)
    case "help", "-h", "--help":
        fmt.Print(usageText(ocr.Enabled))
        return exitOK
    default:
        fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usageText(ocr.Enabled))
        return exitUsage
    }
}

func cmdWatch(ctx context.Context, cfg cfgpkg.Config, args []string) int {
    fs := newFlagSet("watch")
    if err := fs.Parse(args); err != nil || fs.NArg() != 0 { return exitUsage }

    app, err := build(ctx, cfg, true)
    if err != nil {
        log.Error().Err(err).Msg("startup failed")
        return exitInvalid
    }
    defer app.Close()

    var srv *http.Server
    if cfg.HTTP.Addr != "" {
        mux := http.NewServeMux()
        app.orch.RegisterRoutes(mux)
        srv = &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
        go func() {
            log.Info().Msgf("HTTP server listening on %s", cfg.HTTP.Addr)
            if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
                log.Error().Err(err).Msg("http server error")
            }
        }()
    }

    err = app.orch.Watch(ctx)

    if srv != nil {
        sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = srv.Shutdown(sctx)
    }
    if err != nil {
        log.Error().Err(err).Msg("watch stopped")
        return exitInvalid
    }
    log.Info().Msg("shutdown complete")
    return exitOK
}

func cmdOnce(ctx context.Context, cfg cfgpkg.Config, args []string) int {
    fs := newFlagSet("once")
    if err := fs.Parse(args); err != nil || fs.NArg() != 0 { return exitUsage }

    app, err := build(ctx, cfg, true)
    if err != nil {
        log.Error().Err(err).Msg("startup failed")
        return exitInvalid
    }
    defer app.Close()

    res, err := app.orch.RunOnce(ctx)
    if err != nil {
        log.Error().Err(err).Msg("batch failed")
        return exitInvalid
    }
    log.Info().
        Int("processed", res.Processed).
        Int("failed", res.Failed).
        Int("unknown", res.Unknown).
        Int("finalized", res.Finalized).
        Int("not_renamed", res.NotRenamed).
        Msg("batch complete")
    return exitOK
}

func cmdProcess(ctx context.Context, cfg cfgpkg.Config, args []string) int {
    path, rest := splitPositional(args)
    fs := newFlagSet("process")
    if err := fs.Parse(rest); err != nil || path == "" || fs.NArg() != 0 {
        fmt.Fprint(os.Stderr, "usage: invoicebrain process <file.pdf>\n")
        return exitUsage
    }

    app, err := build(ctx, cfg, true)
    if err != nil {
        log.Error().Err(err).Msg("startup failed")
        return exitInvalid
    }
    defer app.Close()

    doc, err := app.orch.Process(ctx, path)
    if err != nil {
        log.Error().Err(err).Str("file", path).Msg("processing failed")
        return exitInvalid
    }
    printDocument(doc)
    return exitOK
}

func cmdFinalize(ctx context.Context, cfg cfgpkg.Config, args []string) int {
    path, rest := splitPositional(args)
    fs := newFlagSet("finalize")
    typ := fs.String("type", "", "document type of the staged file (PO or RO)")
    if err := fs.Parse(rest); err != nil { return exitUsage }
    if path == "" && fs.NArg() == 1 { path = fs.Arg(0) }
    if path == "" || fs.NArg() > 1 {
        fmt.Fprint(os.Stderr, "usage: invoicebrain finalize <staged.pdf> -type PO|RO\n")
        return exitUsage
    }
    t := document.DocType(strings.ToUpper(strings.TrimSpace(*typ)))
    if !t.Known() {
        fmt.Fprintf(os.Stderr, "-type must be PO or RO, got %q\n", *typ)
        return exitUsage
    }

    app, err := build(ctx, cfg, true)
    if err != nil {
        log.Error().Err(err).Msg("startup failed")
        return exitInvalid
    }
    defer app.Close()

    doc, err := app.orch.FinalizeStaged(ctx, path, t, cfg.Paths.Archive)
    if err != nil {
        log.Error().Err(err).Str("file", path).Msg("finalize failed")
        return exitInvalid
    }
    printDocument(doc)
    return exitOK
}

func cmdExport(ctx context.Context, cfg cfgpkg.Config, args []string) int {
    fs := newFlagSet("export")
    out := fs.String("out", "report.xlsx", "spreadsheet to write")
    typ := fs.String("type", "", "only this document type (PO or RO)")
    from := fs.String("from", "", "earliest document date, YYYYMMDD")
    to := fs.String("to", "", "latest document date, YYYYMMDD")
    if err := fs.Parse(args); err != nil || fs.NArg() != 0 { return exitUsage }

    reg, err := registry.Open(cfg.Registry.Path)
    if err != nil {
        log.Error().Err(err).Str("path", cfg.Registry.Path).Msg("failed to open registry")
        return exitInvalid
    }
    defer reg.Close()

    filter := registry.Filter{Type: strings.ToUpper(*typ), From: *from, To: *to}
    n, err := export.WriteReport(ctx, reg, filter, *out)
    if err != nil {
        log.Error().Err(err).Str("out", *out).Msg("export failed")
        return exitInvalid
    }
    log.Info().Int("rows", n).Str("out", *out).Msg("report written")
    return exitOK
}

func cmdFetch(ctx context.Context, cfg cfgpkg.Config, args []string) int {
    key, rest := splitPositional(args)
    fs := newFlagSet("fetch")
    out := fs.String("out", "", "file to write (defaults to the key's base name)")
    if err := fs.Parse(rest); err != nil || key == "" || fs.NArg() != 0 {
        fmt.Fprint(os.Stderr, "usage: invoicebrain fetch <key> -out file\n")
        return exitUsage
    }
    if *out == "" { *out = path.Base(key) }

    m, err := storage.NewMirror(ctx, cfg.S3)
    if err != nil {
        log.Error().Err(err).Msg("s3 mirror unavailable")
        return exitInvalid
    }
    data, err := m.Fetch(ctx, key)
    if err != nil {
        log.Error().Err(err).Str("bucket", m.Bucket()).Str("key", key).Msg("fetch failed")
        return exitInvalid
    }
    if err := fsutil.WriteAtomic(*out, data); err != nil {
        log.Error().Err(err).Str("out", *out).Msg("write failed")
        return exitInvalid
    }
    log.Info().Str("key", key).Str("out", *out).Int("size", len(data)).Msg("artifact fetched")
    return exitOK
}

func cmdHealth(ctx context.Context, cfg cfgpkg.Config, args []string) int {
    fs := newFlagSet("health")
    if err := fs.Parse(args); err != nil || fs.NArg() != 0 { return exitUsage }

    app, err := build(ctx, cfg, false)
    if err != nil {
        log.Error().Err(err).Msg("startup failed")
        return exitInvalid
    }
    defer app.Close()

    sum := app.health.Summary(ctx)
    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    _ = enc.Encode(sum)
    if !sum.Healthy() { return exitInvalid }
    return exitOK
}

func newFlagSet(name string) *flag.FlagSet {
    fs := flag.NewFlagSet(name, flag.ContinueOnError)
    fs.Usage = func() { fmt.Fprint(os.Stderr, usageText(ocr.Enabled)) }
    return fs
}

// splitPositional lets the file argument come before the flags.
func splitPositional(args []string) (string, []string) {
    if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
        return args[0], args[1:]
    }
    return "", args
}

func printDocument(doc *document.Document) {
    if doc == nil { return }
    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    _ = enc.Encode(doc)
}

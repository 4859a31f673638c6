package main

import (
    "context"
    "fmt"

    "github.com/rs/zerolog/log"

    "github.com/local/invoicebrain/internal/classify"
    cfgpkg "github.com/local/invoicebrain/internal/config"
    "github.com/local/invoicebrain/internal/document"
    "github.com/local/invoicebrain/internal/extract"
    "github.com/local/invoicebrain/internal/filetype"
    "github.com/local/invoicebrain/internal/imagerender"
    "github.com/local/invoicebrain/internal/naming"
    "github.com/local/invoicebrain/internal/ocr"
    "github.com/local/invoicebrain/internal/orchestrator"
    "github.com/local/invoicebrain/internal/registry"
    "github.com/local/invoicebrain/internal/statuscheck"
    "github.com/local/invoicebrain/internal/storage"
    "github.com/local/invoicebrain/internal/store"
)

// application holds the wired pipeline and the resources to release.
type application struct {
    orch   *orchestrator.Orchestrator
    health *statuscheck.Checker

    registry *registry.Registry
    status   *store.RedisStatus
}

func (a *application) Close() {
    if a.status != nil { _ = a.status.Close() }
    if a.registry != nil { _ = a.registry.Close() }
}

// build wires every component from cfg. When needOCR is false a build
// without the Tesseract engine still succeeds and only the health
// checker is usable.
func build(ctx context.Context, cfg cfgpkg.Config, needOCR bool) (*application, error) {
    app := &application{}

    reg, err := registry.Open(cfg.Registry.Path)
    if err != nil {
        return nil, fmt.Errorf("open registry %s: %w", cfg.Registry.Path, err)
    }
    app.registry = reg

    checks := statuscheck.Options{
        Registry:   reg,
        OCREnabled: ocr.Enabled,
        Dirs: map[string]string{
            "intake":     cfg.Paths.Intake,
            "staging_po": cfg.Paths.StagingFor(string(document.TypePO)),
            "staging_ro": cfg.Paths.StagingFor(string(document.TypeRO)),
            "archive":    cfg.Paths.Archive,
            "final_po":   cfg.Paths.FinalFor(string(document.TypePO)),
            "final_ro":   cfg.Paths.FinalFor(string(document.TypeRO)),
        },
    }

    var status orchestrator.StatusStore
    if cfg.Redis.URL != "" {
        rs, err := store.NewRedisStatus(cfg.Redis.URL)
        if err != nil {
            // Status tracking is optional; keep going without it.
            log.Warn().Err(err).Msg("redis status store unavailable")
        } else {
            app.status = rs
            status = orchestrator.NewStatusAdapter(rs)
            checks.Redis = rs
        }
    }

    var mirror orchestrator.Mirror
    if cfg.S3.Bucket != "" {
        m, err := storage.NewMirror(ctx, cfg.S3)
        if err != nil {
            log.Warn().Err(err).Str("bucket", cfg.S3.Bucket).Msg("s3 mirror unavailable")
        } else {
            mirror = m
            checks.S3 = m
        }
    }

    app.health = statuscheck.New(checks)

    engine, err := ocr.NewEngine(ocr.Config{TessdataPrefix: cfg.OCR.TessData})
    if err != nil {
        if needOCR {
            app.Close()
            return nil, fmt.Errorf("%w; rebuild with: go build -tags ocr ./cmd/app", err)
        }
        log.Warn().Msg(statuscheck.NoOCRMessage)
        return app, nil
    }

    raster := imagerender.New(nil)
    stagingFor := func(t document.DocType) string { return cfg.Paths.StagingFor(string(t)) }
    finalFor := func(t document.DocType) string { return cfg.Paths.FinalFor(string(t)) }

    classifier := classify.New(raster, engine, classify.Options{
        Title:      region(cfg.Regions.Title),
        DPI:        cfg.OCR.TitleDPI,
        Language:   cfg.OCR.Language,
        ArchiveDir: cfg.Paths.Archive,
        StagingDir: stagingFor,
    })

    extractor := extract.NewExtractor(raster, engine, extract.Options{
        Layouts: map[document.DocType]extract.Layout{
            document.TypePO: {Header: region(cfg.Regions.POHeader), Footer: region(cfg.Regions.POFooter)},
            document.TypeRO: {Header: region(cfg.Regions.ROHeader), Footer: region(cfg.Regions.ROFooter)},
        },
        DPI:      cfg.OCR.FieldDPI,
        Language: cfg.OCR.Language,
    })

    namer := naming.New(naming.Options{
        FinalDir:   finalFor,
        StagingDir: stagingFor,
        ArchiveDir: cfg.Paths.Archive,
        LockWait:   cfg.Naming.LockWait,
        LockStale:  cfg.Naming.LockStale,
    })

    app.orch = orchestrator.New(orchestrator.Dependencies{
        Classifier: classifier,
        Extractor:  extractor,
        Namer:      namer,
        Status:     status,
        Registry:   reg,
        Mirror:     mirror,
        Detector:   filetype.New(),
        Health:     app.health,
    }, orchestrator.Options{
        IntakeDir:       cfg.Paths.Intake,
        PollInterval:    cfg.Watch.PollInterval,
        TotalsTolerance: cfg.Extract.TotalsTolerance,
        TempDirs: []string{
            stagingFor(document.TypePO),
            stagingFor(document.TypeRO),
            finalFor(document.TypePO),
            finalFor(document.TypeRO),
        },
    })
    return app, nil
}

func region(r cfgpkg.Region) imagerender.Region {
    return imagerender.Region{Top: r.Top, Bottom: r.Bottom, Left: r.Left, Right: r.Right}
}

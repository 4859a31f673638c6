package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    documents = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "invoicebrain",
            Name:      "documents_total",
            Help:      "Documents handled by pipeline stage and result",
        },
        []string{"stage", "result"},
    )

    stageLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "invoicebrain",
            Name:      "stage_duration_seconds",
            Help:      "Duration of pipeline stages",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"stage"},
    )

    classified = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "invoicebrain",
            Name:      "classified_total",
            Help:      "Documents classified by type",
        },
        []string{"type"},
    )

    fieldsMissing = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "invoicebrain",
            Name:      "fields_missing_total",
            Help:      "Fields left unresolved after extraction, by document type and field",
        },
        []string{"type", "field"},
    )

    namingCollisions = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "invoicebrain",
            Name:      "naming_collisions_total",
            Help:      "Canonical names that needed a numeric suffix",
        },
    )

    movesSkipped = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "invoicebrain",
            Name:      "naming_moves_skipped_total",
            Help:      "Artifact moves skipped because the destination existed or the source was missing",
        },
        []string{"artifact"},
    )

    totalsImplausible = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "invoicebrain",
            Name:      "totals_implausible_total",
            Help:      "Documents whose HT + tax does not match TTC within tolerance",
        },
        []string{"type"},
    )

    intakePending = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "invoicebrain",
            Name:      "intake_pending",
            Help:      "PDF files seen in the intake directory on the last scan",
        },
    )

    registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    registerOnce.Do(func() {
        prometheus.MustRegister(documents, stageLatency, classified, fieldsMissing,
            namingCollisions, movesSkipped, totalsImplausible, intakePending)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveStage(stage, result string, dur time.Duration) {
    documents.WithLabelValues(stage, result).Inc()
    stageLatency.WithLabelValues(stage).Observe(dur.Seconds())
}

func IncClassified(docType string)            { classified.WithLabelValues(docType).Inc() }
func IncFieldMissing(docType, field string)   { fieldsMissing.WithLabelValues(docType, field).Inc() }
func IncCollision()                           { namingCollisions.Inc() }
func IncMoveSkipped(artifact string)          { movesSkipped.WithLabelValues(artifact).Inc() }
func IncImplausible(docType string)           { totalsImplausible.WithLabelValues(docType).Inc() }
func SetIntakePending(n int)                  { intakePending.Set(float64(n)) }

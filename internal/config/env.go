package config

import (
    "fmt"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// PathsConfig defines the storage layout. Staging and Final are roots;
// each document type gets its own directory below them.
type PathsConfig struct {
    Intake  string
    Staging string
    Archive string
    Final   string
}

// StagingFor returns the per-type staging directory (e.g. data/PO_detected).
func (p PathsConfig) StagingFor(docType string) string {
    return filepath.Join(p.Staging, docType+"_detected")
}

// FinalFor returns the per-type finalized directory (e.g. data/final/PO).
func (p PathsConfig) FinalFor(docType string) string {
    return filepath.Join(p.Final, docType)
}

// Region is a crop expressed as fractions of the page height and width.
type Region struct {
    Top    float64
    Bottom float64
    Left   float64
    Right  float64
}

// RegionsConfig holds the crop regions used for OCR.
type RegionsConfig struct {
    Title    Region
    POHeader Region
    ROHeader Region
    POFooter Region
    ROFooter Region
}

// OCRConfig defines OCR engine behavior.
type OCRConfig struct {
    Language string
    TitleDPI int
    FieldDPI int
    TessData string
}

// WatchConfig defines intake polling.
type WatchConfig struct {
    PollInterval time.Duration
}

// NamingConfig defines naming lock behavior.
type NamingConfig struct {
    LockWait  time.Duration
    LockStale time.Duration
}

// ExtractConfig holds extraction tuning.
type ExtractConfig struct {
    TotalsTolerance float64
}

// RedisConfig defines the optional status store.
type RedisConfig struct {
    URL string
}

// S3Config defines the optional artifact mirror.
type S3Config struct {
    Bucket             string
    Prefix             string
    Region             string
    Endpoint           string
    AccessKeyID        string
    SecretAccessKey    string
    EncryptionPassword string
}

// RegistryConfig defines the local document index.
type RegistryConfig struct {
    Path string
}

// HTTPConfig defines the optional health/metrics listener.
type HTTPConfig struct {
    Addr string
}

// Config is the top-level configuration.
type Config struct {
    Logging  LoggingConfig
    Axiom    AxiomConfig
    Paths    PathsConfig
    Regions  RegionsConfig
    OCR      OCRConfig
    Watch    WatchConfig
    Naming   NamingConfig
    Extract  ExtractConfig
    Redis    RedisConfig
    S3       S3Config
    Registry RegistryConfig
    HTTP     HTTPConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/invoicebrain.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_invoicebrain",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Paths = PathsConfig{
        Intake:  getEnv("INTAKE_DIR", "incoming"),
        Staging: getEnv("STAGING_DIR", "data"),
        Archive: getEnv("ARCHIVE_DIR", filepath.Join("data", "processed")),
        Final:   getEnv("FINAL_DIR", filepath.Join("data", "final")),
    }

    // Crop defaults match the PO/RO print layout.
    cfg.Regions = RegionsConfig{
        Title:    parseRegion(getEnv("REGION_TITLE", ""), Region{0.10, 0.30, 0, 0.72}),
        POHeader: parseRegion(getEnv("REGION_PO_HEADER", ""), Region{0.15, 0.30, 0, 0.60}),
        ROHeader: parseRegion(getEnv("REGION_RO_HEADER", ""), Region{0.10, 0.29, 0, 0.60}),
        POFooter: parseRegion(getEnv("REGION_PO_FOOTER", ""), Region{0.70, 0.78, 0.60, 0.98}),
        ROFooter: parseRegion(getEnv("REGION_RO_FOOTER", ""), Region{0.78, 0.90, 0.55, 0.98}),
    }

    cfg.OCR = OCRConfig{
        Language: getEnv("OCR_LANG", "fra+eng"),
        TitleDPI: parseInt(getEnv("OCR_TITLE_DPI", "200"), 200),
        FieldDPI: parseInt(getEnv("OCR_FIELD_DPI", "300"), 300),
        TessData: getEnv("TESSDATA_PREFIX", ""),
    }

    cfg.Watch = WatchConfig{
        PollInterval: parseDuration(getEnv("POLL_INTERVAL", "5s"), 5*time.Second),
    }

    cfg.Naming = NamingConfig{
        LockWait:  parseDuration(getEnv("NAMING_LOCK_WAIT", "30s"), 30*time.Second),
        LockStale: parseDuration(getEnv("NAMING_LOCK_STALE", "5m"), 5*time.Minute),
    }

    cfg.Extract = ExtractConfig{
        TotalsTolerance: parseFloat(getEnv("TOTALS_TOLERANCE", "0.02"), 0.02),
    }

    cfg.Redis = RedisConfig{URL: getEnv("REDIS_URL", "")}

    cfg.S3 = S3Config{
        Bucket:             getEnv("AWS_S3_BUCKET", ""),
        Prefix:             strings.Trim(getEnv("AWS_S3_PREFIX", "invoicebrain"), "/"),
        Region:             getEnv("AWS_REGION", ""),
        Endpoint:           getEnv("AWS_S3_ENDPOINT", ""),
        AccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
        SecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
        EncryptionPassword: getEnv("S3_ENCRYPTION_PASSWORD", ""),
    }

    cfg.Registry = RegistryConfig{Path: getEnv("REGISTRY_PATH", filepath.Join("data", "registry.db"))}
    cfg.HTTP = HTTPConfig{Addr: getEnv("HTTP_ADDR", "")}

    return cfg
}

// Validate reports configuration values the pipeline cannot run with.
func (c Config) Validate() error {
    if strings.TrimSpace(c.Paths.Intake) == "" { return fmt.Errorf("INTAKE_DIR is empty") }
    if c.Watch.PollInterval <= 0 { return fmt.Errorf("POLL_INTERVAL must be positive") }
    if c.OCR.TitleDPI <= 0 || c.OCR.FieldDPI <= 0 { return fmt.Errorf("OCR dpi must be positive") }
    regions := map[string]Region{
        "REGION_TITLE": c.Regions.Title, "REGION_PO_HEADER": c.Regions.POHeader,
        "REGION_RO_HEADER": c.Regions.ROHeader, "REGION_PO_FOOTER": c.Regions.POFooter,
        "REGION_RO_FOOTER": c.Regions.ROFooter,
    }
    for name, r := range regions {
        if !r.valid() { return fmt.Errorf("%s: invalid region %+v", name, r) }
    }
    return nil
}

func (r Region) valid() bool {
    return r.Top >= 0 && r.Left >= 0 && r.Bottom <= 1 && r.Right <= 1 && r.Top < r.Bottom && r.Left < r.Right
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

// parseRegion reads "top,bottom,left,right" fractions.
func parseRegion(s string, def Region) Region {
    if s == "" { return def }
    parts := strings.Split(s, ",")
    if len(parts) != 4 { return def }
    var v [4]float64
    for i, p := range parts {
        f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
        if err != nil { return def }
        v[i] = f
    }
    return Region{Top: v[0], Bottom: v[1], Left: v[2], Right: v[3]}
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}

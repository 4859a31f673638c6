package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestInitWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Level: "debug", Console: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	log.Info().Str("doc_id", "abc").Msg("classified")

	var ev map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if ev["service"] != "invoicebrain" || ev["doc_id"] != "abc" || ev["message"] != "classified" {
		t.Errorf("unexpected event: %v", ev)
	}
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Level: "warn", Console: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	log.Info().Msg("hidden")
	l := Component("naming")
	l.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line leaked at warn level: %s", out)
	}
	if !strings.Contains(out, `"component":"naming"`) {
		t.Errorf("component field missing: %s", out)
	}
}

func TestInitCreatesLogDir(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "nested", "app.log")
	if err := Init(Options{File: file, MaxSizeMB: 1, Console: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()
	Get().Info().Msg("to file")
}

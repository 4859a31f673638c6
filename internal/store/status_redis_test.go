package store

import (
	"testing"
	"time"
)

func TestStatusKey(t *testing.T) {
	if got := statusKey("doc", "abc"); got != "doc:abc:status" {
		t.Errorf("statusKey = %q", got)
	}
	if got := intakeKey("scan.pdf"); got != "intake_to_doc:scan.pdf" {
		t.Errorf("intakeKey = %q", got)
	}
}

func TestEncodeDecode(t *testing.T) {
	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	st := Status{
		Stage:    "finalized",
		Type:     "PO",
		Message:  "ok",
		File:     "data/final/PO/PO-20240315-DAC1.pdf",
		Stem:     "PO-20240315-DAC1",
		Start:    &start,
		Metadata: map[string]interface{}{"moves": float64(3)},
	}
	m := encode(st)
	flat := make(map[string]string, len(m))
	for k, v := range m {
		flat[k] = v.(string)
	}
	got := decode(flat)
	if got.Stage != st.Stage || got.Type != st.Type || got.Stem != st.Stem || got.File != st.File {
		t.Errorf("decode = %+v", got)
	}
	if got.Start == nil || !got.Start.Equal(start) || got.End != nil {
		t.Errorf("times = %v %v", got.Start, got.End)
	}
	if got.Metadata["moves"] != float64(3) {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

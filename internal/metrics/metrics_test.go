package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersIncrementCollectors(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(classified.WithLabelValues("PO"))
	IncClassified("PO")
	if got := testutil.ToFloat64(classified.WithLabelValues("PO")); got != before+1 {
		t.Errorf("classified PO = %v, want %v", got, before+1)
	}

	ObserveStage("classify", "ok", 20*time.Millisecond)
	if got := testutil.ToFloat64(documents.WithLabelValues("classify", "ok")); got < 1 {
		t.Errorf("documents classify/ok = %v", got)
	}

	SetIntakePending(3)
	if got := testutil.ToFloat64(intakePending); got != 3 {
		t.Errorf("intake pending = %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	Init()
	IncCollision()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "invoicebrain_naming_collisions_total") {
		t.Errorf("metrics output missing collision counter")
	}
}

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveActionCountsByResult(t *testing.T) {
	before := testutil.ToFloat64(actionsTotal.WithLabelValues("transfer", "succeeded"))
	ObserveAction("transfer", true, 2*time.Second)
	ObserveAction("transfer", false, time.Second)

	if got := testutil.ToFloat64(actionsTotal.WithLabelValues("transfer", "succeeded")); got != before+1 {
		t.Fatalf("unexpected succeeded count %v", got)
	}
	if got := testutil.ToFloat64(actionsTotal.WithLabelValues("transfer", "failed")); got < 1 {
		t.Fatalf("unexpected failed count %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	ObserveCycle("succeeded")
	UnitStarted()
	defer UnitStopped()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"faucetpilot_cycles_total", "faucetpilot_units_running", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

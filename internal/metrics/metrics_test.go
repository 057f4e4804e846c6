package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserver(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	o := New(reg, "native")

	o.Started("update")
	if got := testutil.ToFloat64(o.inFlight.WithLabelValues("update")); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}
	o.Finished("update", true, 2*time.Second)
	o.Started("update")
	o.Finished("update", false, time.Second)
	o.Rejected("push")
	o.Rejected("push")

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{name: "in flight", c: o.inFlight.WithLabelValues("update"), want: 0},
		{name: "successes", c: o.operations.WithLabelValues("update", "success"), want: 1},
		{name: "failures", c: o.operations.WithLabelValues("update", "failure"), want: 1},
		{name: "rejected", c: o.rejected.WithLabelValues("push"), want: 2},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Fatalf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	const want = `
# HELP gitdeps_operations_rejected_total Operations refused because another one was in progress
# TYPE gitdeps_operations_rejected_total counter
gitdeps_operations_rejected_total{backend="native",op="push"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "gitdeps_operations_rejected_total"); err != nil {
		t.Fatalf("GatherAndCompare() error = %v", err)
	}
	if n := testutil.CollectAndCount(o.duration); n != 1 {
		t.Fatalf("duration series = %d, want 1", n)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg, "gitcli").Rejected("status")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `gitdeps_operations_rejected_total{backend="gitcli",op="status"} 1`) {
		t.Fatalf("metrics output missing rejected counter:\n%s", body)
	}
}

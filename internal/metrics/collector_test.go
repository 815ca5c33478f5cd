package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	c := NewCollector()
	ctr := c.Counter("test_total", "a counter")
	ctr.Inc()
	ctr.Inc()
	if same := c.Counter("test_total", "ignored"); same != ctr || same.Value() != 2 {
		t.Fatalf("expected the same counter with value 2, got %d", same.Value())
	}

	g := c.Gauge("test_up", "a gauge")
	g.Set(1)
	g.Set(0)
	if g.Value() != 0 {
		t.Fatalf("gauge = %d, want 0", g.Value())
	}
}

func TestHistogram_Buckets(t *testing.T) {
	c := NewCollector()
	h := c.Histogram("test_seconds", "a histogram", []float64{5, 1})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(100)

	if h.Count() != 3 {
		t.Fatalf("count = %d, want 3", h.Count())
	}
	want := []int64{1, 2, 3} // le=1, le=5, le=+Inf
	for i, n := range want {
		if h.buckets[i] != n {
			t.Errorf("bucket %g = %d, want %d", h.bounds[i], h.buckets[i], n)
		}
	}
}

func TestHistogram_ObserveSince(t *testing.T) {
	c := NewCollector()
	h := c.Histogram("test_latency_seconds", "", []float64{60})
	h.ObserveSince(time.Now().Add(-2 * time.Second))
	if h.buckets[0] != 1 || h.sum < 2 {
		t.Fatalf("unexpected histogram state: sum=%f buckets=%v", h.sum, h.buckets)
	}
}

func TestWriteTo_PrometheusText(t *testing.T) {
	c := NewCollector()
	c.Counter("b_total", "second").Inc()
	c.Counter("a_total", "first")
	c.Gauge("up", "session").Set(1)
	c.Histogram("lat_seconds", "latency", []float64{1}).Observe(0.25)

	var sb strings.Builder
	if _, err := c.WriteTo(&sb); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"# TYPE jarvis_relay_uptime_seconds gauge",
		"# HELP a_total first\n# TYPE a_total counter\na_total 0\n",
		"b_total 1\n",
		"# TYPE up gauge\nup 1\n",
		"lat_seconds_bucket{le=\"1\"} 1\n",
		"lat_seconds_bucket{le=\"+Inf\"} 1\n",
		"lat_seconds_count 1\n",
		"lat_seconds_sum 0.250000\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
	if strings.Index(out, "a_total") > strings.Index(out, "b_total") {
		t.Errorf("counters should be sorted by name:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.Counter("served_total", "").Inc()

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "served_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

func TestRelayMetricsRegistered(t *testing.T) {
	var sb strings.Builder
	if _, err := Default.WriteTo(&sb); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"jarvis_relay_messages_total",
		"jarvis_relay_refused_total",
		"jarvis_relay_replies_total",
		"jarvis_relay_assistant_failures_total",
		"jarvis_relay_session_restarts_total",
		"jarvis_relay_session_up",
		"jarvis_relay_assistant_latency_seconds_count",
	} {
		if !strings.Contains(sb.String(), name) {
			t.Errorf("%s not registered", name)
		}
	}
}

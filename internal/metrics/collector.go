// Package metrics keeps a few relay counters and renders them in the
// Prometheus text exposition format without pulling in client_golang.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the process-wide collector the relay reports into.
var Default = NewCollector()

// Collector aggregates counters, gauges and histograms.
type Collector struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewCollector() *Collector {
	return &Collector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the collector has existed.
func (r *Collector) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// Counter only goes up.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name string
	help string

	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records v in every bucket whose upper bound is >= v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns how many values were observed.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns the counter called name, creating it on first use.
func (r *Collector) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

func (r *Collector) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// Histogram returns the histogram called name. Buckets are only used when
// the histogram is created; +Inf is always appended.
func (r *Collector) Histogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	bounds = append(bounds, math.Inf(1))
	h := &Histogram{name: name, help: help, bounds: bounds, buckets: make([]int64, len(bounds))}
	r.histograms[name] = h
	return h
}

// WriteTo renders every metric, sorted by name.
func (r *Collector) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	writeHeader(&sb, "jarvis_relay_uptime_seconds", "Time since start in seconds", "gauge")
	fmt.Fprintf(&sb, "jarvis_relay_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	r.mu.Lock()
	counters := sortedKeys(r.counters)
	gauges := sortedKeys(r.gauges)
	histograms := sortedKeys(r.histograms)
	r.mu.Unlock()

	for _, name := range counters {
		c := r.Counter(name, "")
		writeHeader(&sb, c.name, c.help, "counter")
		fmt.Fprintf(&sb, "%s %d\n", c.name, c.Value())
	}
	for _, name := range gauges {
		g := r.Gauge(name, "")
		writeHeader(&sb, g.name, g.help, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
	}
	for _, name := range histograms {
		h := r.Histogram(name, "", nil)
		h.mu.Lock()
		writeHeader(&sb, h.name, h.help, "histogram")
		for i, le := range h.bounds {
			bound := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				bound = "+Inf"
			}
			fmt.Fprintf(&sb, "%s_bucket{le=\"%s\"} %d\n", h.name, bound, h.buckets[i])
		}
		fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)
		fmt.Fprintf(&sb, "%s_sum %f\n", h.name, h.sum)
		h.mu.Unlock()
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Handler serves the metrics in Prometheus text format.
func (r *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	}
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Metrics reported by the relay.
var (
	MessagesTotal     = Default.Counter("jarvis_relay_messages_total", "Messages received from other users")
	RefusedTotal      = Default.Counter("jarvis_relay_refused_total", "Messages refused by the allow-list")
	RepliesTotal      = Default.Counter("jarvis_relay_replies_total", "Replies sent back to the chat")
	AssistantFailures = Default.Counter("jarvis_relay_assistant_failures_total", "Assistant runs that produced no usable answer")
	SessionRestarts   = Default.Counter("jarvis_relay_session_restarts_total", "Sessions rebuilt after a crash")
	SessionUp         = Default.Gauge("jarvis_relay_session_up", "1 while a chat session is listening")

	AssistantLatency = Default.Histogram("jarvis_relay_assistant_latency_seconds", "Time spent waiting for the assistant",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
)

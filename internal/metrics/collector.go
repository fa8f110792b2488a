// Package metrics provides a lightweight, Prometheus-compatible metrics
// registry. It outputs text/plain in Prometheus exposition format without
// requiring the heavy prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds counters, gauges and histograms keyed by name and labels.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// StartTime returns when the registry was created.
func (r *Registry) StartTime() time.Time { return r.startTime }

// Uptime returns how long the registry has been running.
func (r *Registry) Uptime() time.Duration { return time.Since(r.startTime) }

// Counter is a monotonically increasing counter.
type Counter struct {
	name, help, labels string
	value              atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name, help, labels string
	value              atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name, help, labels string

	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records a value in every bucket whose upper bound it fits.
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

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func seriesKey(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns or creates a counter.
func (r *Registry) Counter(name, help, labels string) *Counter {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key] = c
	return c
}

// Gauge returns or creates a gauge.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[key] = g
	return g
}

// Histogram returns or creates a histogram with the given upper bounds.
func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[key]; ok {
		return h
	}
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	h := &Histogram{name: name, help: help, labels: labels, bounds: b, buckets: make([]int64, len(b))}
	r.histograms[key] = h
	return h
}

// Handler renders all series in Prometheus text format, sorted by name.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteText(w)
	}
}

// WriteText writes the exposition text to w.
func (r *Registry) WriteText(w io.Writer) {
	fmt.Fprintf(w, "# HELP listingbot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(w, "# TYPE listingbot_uptime_seconds gauge\n")
	fmt.Fprintf(w, "listingbot_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, key := range sortedKeys(r.counters) {
		c := r.counters[key]
		writeHeader(w, seen, c.name, c.help, "counter")
		fmt.Fprintf(w, "%s %d\n", series(c.name, c.labels), c.Value())
	}
	for _, key := range sortedKeys(r.gauges) {
		g := r.gauges[key]
		writeHeader(w, seen, g.name, g.help, "gauge")
		fmt.Fprintf(w, "%s %d\n", series(g.name, g.labels), g.Value())
	}
	for _, key := range sortedKeys(r.histograms) {
		h := r.histograms[key]
		writeHeader(w, seen, h.name, h.help, "histogram")
		h.mu.Lock()
		for i, le := range h.bounds {
			bound := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				bound = "+Inf"
			}
			labels := `le="` + bound + `"`
			if h.labels != "" {
				labels = h.labels + "," + labels
			}
			fmt.Fprintf(w, "%s %d\n", series(h.name+"_bucket", labels), h.buckets[i])
		}
		fmt.Fprintf(w, "%s %d\n", series(h.name+"_count", h.labels), h.count)
		fmt.Fprintf(w, "%s %f\n", series(h.name+"_sum", h.labels), h.sum)
		h.mu.Unlock()
	}
}

func writeHeader(w io.Writer, seen map[string]bool, name, help, kind string) {
	if seen[name] {
		return
	}
	seen[name] = true
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func series(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package metrics provides Prometheus-compatible metrics for the gaze
// input daemon.
//
// Features:
//   - Counters for samples, state changes, invocations and exits
//   - Gauges for active targets and history length
//   - Histograms for sample intervals
//   - Labelled series sharing one metric name
//   - Prometheus text and JSON exposition over HTTP
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric.
type MetricType int

const (
	// TypeCounter is a monotonically increasing counter.
	TypeCounter MetricType = iota
	// TypeGauge is a value that can go up and down.
	TypeGauge
	// TypeHistogram is a distribution of values.
	TypeHistogram
)

// String returns the string representation of the metric type.
func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels represents metric labels.
type Labels map[string]string

// String returns the Prometheus form of the labels, keys sorted.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(l))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s=%q`, k, l[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// with returns a copy of l with one more label.
func (l Labels) with(k, v string) string {
	out := make(Labels, len(l)+1)
	for key, val := range l {
		out[key] = val
	}
	out[k] = v
	return out.String()
}

// Metric is implemented by every metric kind.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels Labels
	value  atomic.Uint64
}

// NewCounter creates a new Counter.
func NewCounter(name, help string, labels Labels) *Counter {
	return &Counter{name: name, help: help, labels: labels}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds the given value to the counter.
func (c *Counter) Add(v uint64) { c.value.Add(v) }

// Value returns the current value.
func (c *Counter) Value() uint64 { return c.value.Load() }

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels Labels
	value  atomic.Int64
}

// NewGauge creates a new Gauge.
func NewGauge(name, help string, labels Labels) *Gauge {
	return &Gauge{name: name, help: help, labels: labels}
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Add adds the given value to the gauge.
func (g *Gauge) Add(v int64) { g.value.Add(v) }

// Value returns the current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Histogram tracks the distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  Labels
	buckets []float64

	mu     sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

// DurationBuckets are buckets for duration histograms (in seconds).
var DurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// SampleIntervalBuckets suit the spacing of tracker samples (in seconds),
// from 1 kHz trackers up to sensor gaps.
var SampleIntervalBuckets = []float64{
	0.001, 0.002, 0.004, 0.008, 0.0167, 0.033, 0.066, 0.1, 0.25, 1,
}

// NewHistogram creates a new Histogram.
func NewHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DurationBuckets
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1), // +1 for +Inf
	}
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++
	// le buckets: the first bucket whose bound is >= v
	idx := sort.SearchFloat64s(h.buckets, v)
	h.counts[idx]++
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Count returns the count of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Mean returns the mean of observed values.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// cumulative returns the cumulative bucket counts, +Inf last.
func (h *Histogram) cumulative() []uint64 {
	out := make([]uint64, len(h.counts))
	var total uint64
	for i, c := range h.counts {
		total += c
		out[i] = total
	}
	return out
}

// Registry holds registered metrics. Series are keyed by name and labels,
// so one name can carry several labelled series.
type Registry struct {
	mu     sync.RWMutex
	series map[string]Metric

	namespace string
	subsystem string
}

// NewRegistry creates a new Registry.
func NewRegistry(namespace, subsystem string) *Registry {
	return &Registry{
		series:    make(map[string]Metric),
		namespace: namespace,
		subsystem: subsystem,
	}
}

// fullName returns the full metric name with namespace and subsystem.
func (r *Registry) fullName(name string) string {
	parts := []string{}
	if r.namespace != "" {
		parts = append(parts, r.namespace)
	}
	if r.subsystem != "" {
		parts = append(parts, r.subsystem)
	}
	parts = append(parts, name)
	return strings.Join(parts, "_")
}

// register returns the series stored under name and labels, creating it
// with mk if it does not exist yet.
func register[M Metric](r *Registry, name string, labels Labels, mk func(full string) M) M {
	full := r.fullName(name)
	key := full + labels.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.series[key]; ok {
		if typed, ok := m.(M); ok {
			return typed
		}
		panic(fmt.Sprintf("metrics: %s registered as %s", key, m.Type()))
	}
	m := mk(full)
	r.series[key] = m
	return m
}

// RegisterCounter registers a counter series.
func (r *Registry) RegisterCounter(name, help string, labels Labels) *Counter {
	return register(r, name, labels, func(full string) *Counter {
		return NewCounter(full, help, labels)
	})
}

// RegisterGauge registers a gauge series.
func (r *Registry) RegisterGauge(name, help string, labels Labels) *Gauge {
	return register(r, name, labels, func(full string) *Gauge {
		return NewGauge(full, help, labels)
	})
}

// RegisterHistogram registers a histogram series.
func (r *Registry) RegisterHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return register(r, name, labels, func(full string) *Histogram {
		return NewHistogram(full, help, labels, buckets)
	})
}

// sortedKeys returns the series keys in exposition order.
func (r *Registry) sortedKeys() []string {
	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WritePrometheus writes metrics in Prometheus text format.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	described := make(map[string]bool)
	for _, key := range r.sortedKeys() {
		m := r.series[key]
		if !described[m.Name()] {
			described[m.Name()] = true
			fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), m.Help())
			fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
		}

		switch m := m.(type) {
		case *Counter:
			fmt.Fprintf(w, "%s%s %d\n", m.name, m.labels.String(), m.Value())
		case *Gauge:
			fmt.Fprintf(w, "%s%s %d\n", m.name, m.labels.String(), m.Value())
		case *Histogram:
			m.mu.Lock()
			cum := m.cumulative()
			for i, bound := range m.buckets {
				fmt.Fprintf(w, "%s_bucket%s %d\n", m.name, m.labels.with("le", fmt.Sprintf("%g", bound)), cum[i])
			}
			fmt.Fprintf(w, "%s_bucket%s %d\n", m.name, m.labels.with("le", "+Inf"), cum[len(cum)-1])
			fmt.Fprintf(w, "%s_sum%s %g\n", m.name, m.labels.String(), m.sum)
			fmt.Fprintf(w, "%s_count%s %d\n", m.name, m.labels.String(), m.count)
			m.mu.Unlock()
		}
	}
	return nil
}

// WriteJSON writes metrics in JSON format, one entry per series.
func (r *Registry) WriteJSON(w io.Writer) error {
	r.mu.RLock()
	out := make(map[string]any, len(r.series))
	for key, m := range r.series {
		entry := map[string]any{
			"type": m.Type().String(),
			"help": m.Help(),
		}
		switch m := m.(type) {
		case *Counter:
			entry["value"] = m.Value()
		case *Gauge:
			entry["value"] = m.Value()
		case *Histogram:
			m.mu.Lock()
			cum := m.cumulative()
			buckets := make(map[string]uint64, len(cum))
			for i, bound := range m.buckets {
				buckets[fmt.Sprintf("%g", bound)] = cum[i]
			}
			buckets["+Inf"] = cum[len(cum)-1]
			entry["buckets"] = buckets
			entry["sum"] = m.sum
			entry["count"] = m.count
			m.mu.Unlock()
		}
		out[key] = entry
	}
	r.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Snapshot returns counter and gauge values keyed by series.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]int64, len(r.series))
	for key, m := range r.series {
		switch m := m.(type) {
		case *Counter:
			snap[key] = int64(m.Value())
		case *Gauge:
			snap[key] = m.Value()
		case *Histogram:
			snap[key+"_count"] = int64(m.Count())
		}
	}
	return snap
}

// Reset zeroes every series.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.series {
		switch m := m.(type) {
		case *Counter:
			m.value.Store(0)
		case *Gauge:
			m.value.Store(0)
		case *Histogram:
			m.mu.Lock()
			m.sum, m.count = 0, 0
			clear(m.counts)
			m.mu.Unlock()
		}
	}
}

// HTTPHandler returns an HTTP handler for metrics.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			r.WriteJSON(w)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}

var defaultRegistry = NewRegistry("gaze", "")

// Default returns the default global registry.
func Default() *Registry {
	return defaultRegistry
}

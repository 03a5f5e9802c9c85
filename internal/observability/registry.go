package observability

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// collector writes one metric family in Prometheus text exposition format.
type collector interface {
	WritePrometheus(w io.Writer) error
}

// family is the identity shared by every metric kind.
type family struct {
	name   string
	help   string
	kind   string
	labels []string
}

func (f family) key(values []string) string { return labelString(f.labels, values) }

// expo accumulates exposition lines and remembers the first write error.
type expo struct {
	w   io.Writer
	err error
}

func (e *expo) line(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format+"\n", args...)
}

func (e *expo) header(f family) {
	e.line("# HELP %s %s", f.name, f.help)
	e.line("# TYPE %s %s", f.name, f.kind)
}

type CounterVec struct {
	family
	mu     sync.RWMutex
	series map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{
		family: family{name: name, help: help, kind: "counter", labels: labels},
		series: map[string]float64{},
	}
}

func (c *CounterVec) Inc(values ...string) { c.Add(1, values...) }

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil || v < 0 {
		return
	}
	k := c.key(values)
	c.mu.Lock()
	c.series[k] += v
	c.mu.Unlock()
}

// Value returns the current count for one label set.
func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.series[c.key(values)]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	e := &expo{w: w}
	e.header(c.family)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range sortedKeys(c.series) {
		e.line("%s%s %s", c.name, k, formatSample(c.series[k]))
	}
	return e.err
}

type Gauge struct {
	family
	mu  sync.RWMutex
	val float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{family: family{name: name, help: help, kind: "gauge"}}
}

func (g *Gauge) Add(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val += v
	g.mu.Unlock()
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.val
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	e := &expo{w: w}
	e.header(g.family)
	e.line("%s %s", g.name, formatSample(g.Value()))
	return e.err
}

type HistogramVec struct {
	family
	bounds []float64
	mu     sync.RWMutex
	series map[string]*histogramSeries
}

// histogramSeries keeps per-bucket (non-cumulative) counts; the last slot is
// the overflow above the highest bound.
type histogramSeries struct {
	buckets []uint64
	sum     float64
	count   uint64
}

func NewHistogramVec(name, help string, labels []string, bounds []float64) *HistogramVec {
	if len(bounds) == 0 {
		bounds = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &HistogramVec{
		family: family{name: name, help: help, kind: "histogram", labels: labels},
		bounds: sorted,
		series: map[string]*histogramSeries{},
	}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	k := h.key(values)
	idx := sort.SearchFloat64s(h.bounds, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.series[k]
	if !ok {
		s = &histogramSeries{buckets: make([]uint64, len(h.bounds)+1)}
		h.series[k] = s
	}
	s.buckets[idx]++
	s.sum += v
	s.count++
}

// Count returns how many observations one label set has seen.
func (h *HistogramVec) Count(values ...string) uint64 {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.series[h.key(values)]; ok {
		return s.count
	}
	return 0
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	e := &expo{w: w}
	e.header(h.family)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, k := range sortedKeys(h.series) {
		s := h.series[k]
		var cumulative uint64
		for i, b := range h.bounds {
			cumulative += s.buckets[i]
			e.line("%s_bucket%s %d", h.name, withLe(k, formatSample(b)), cumulative)
		}
		e.line("%s_bucket%s %d", h.name, withLe(k, "+Inf"), s.count)
		e.line("%s_sum%s %s", h.name, k, formatSample(s.sum))
		e.line("%s_count%s %d", h.name, k, s.count)
	}
	return e.err
}

func formatSample(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// labelString renders values as {name="value",...}; missing or empty values
// become "unknown".
func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	pairs := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		pairs[i] = name + `="` + escapeLabel(val) + `"`
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(v string) string { return labelEscaper.Replace(v) }

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" {
		return `{le="` + le + `"}`
	}
	return strings.TrimSuffix(labels, "}") + `,le="` + le + `"}`
}

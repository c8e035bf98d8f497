package metrics

import (
	"errors"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match label names.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to decrease a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is the panic value when a metric name is registered twice.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// atomicFloat64 is a float64 updated with compare-and-swap on its bit pattern.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *atomicFloat64) Store(val float64) {
	a.bits.Store(math.Float64bits(val))
}

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// MetricType is the Prometheus metric type name.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is a named family of samples that can be exposed.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Collect() []Sample
}

// LabelPair is one name="value" pair on a sample.
type LabelPair struct {
	Name  string
	Value string
}

// Sample is a single exposition line.
type Sample struct {
	Name   string
	Labels []LabelPair
	Value  float64
}

// family holds the labelled children of one metric. Children are created
// lazily on first use of a label combination and never removed.
type family[V any] struct {
	name       string
	help       string
	labelNames []string
	newValue   func() *V

	mu       sync.RWMutex
	children map[string]*child[V]
}

type child[V any] struct {
	values []string
	v      *V
}

func (f *family[V]) init(name, help string, labelNames []string, newValue func() *V) {
	f.name = name
	f.help = help
	f.labelNames = slices.Clone(labelNames)
	f.newValue = newValue
	f.children = make(map[string]*child[V])
}

func (f *family[V]) Name() string { return f.name }

func (f *family[V]) Help() string { return f.help }

func (f *family[V]) with(values []string) (*V, error) {
	if len(values) != len(f.labelNames) {
		return nil, ErrLabelCountMismatch
	}
	key := strings.Join(values, "\x00")

	f.mu.RLock()
	c, ok := f.children[key]
	f.mu.RUnlock()
	if ok {
		return c.v, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.children[key]; ok {
		return c.v, nil
	}
	c = &child[V]{values: slices.Clone(values), v: f.newValue()}
	f.children[key] = c
	return c.v, nil
}

// each visits children ordered by label values so exposition is stable.
func (f *family[V]) each(fn func(labels []LabelPair, v *V)) {
	f.mu.RLock()
	kids := make([]*child[V], 0, len(f.children))
	for _, c := range f.children {
		kids = append(kids, c)
	}
	f.mu.RUnlock()

	slices.SortFunc(kids, func(a, b *child[V]) int {
		return slices.Compare(a.values, b.values)
	})
	for _, c := range kids {
		fn(f.pairs(c.values), c.v)
	}
}

func (f *family[V]) pairs(values []string) []LabelPair {
	if len(values) == 0 {
		return nil
	}
	out := make([]LabelPair, len(values))
	for i, v := range values {
		out[i] = LabelPair{Name: f.labelNames[i], Value: v}
	}
	return out
}

// ============================================================================
// Counter
// ============================================================================

// Counter is a monotonically increasing value, optionally partitioned by labels.
type Counter struct {
	family[atomicFloat64]
}

func newCounter(name, help string, labelNames []string) *Counter {
	c := &Counter{}
	c.init(name, help, labelNames, func() *atomicFloat64 { return new(atomicFloat64) })
	return c
}

func (c *Counter) Type() MetricType { return MetricTypeCounter }

// WithLabels returns the counter child for the given label values.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	v, err := c.with(values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{value: v}, nil
}

// Inc increments an unlabelled counter by one.
func (c *Counter) Inc() error {
	return c.Add(1)
}

// Add adds delta to an unlabelled counter.
func (c *Counter) Add(delta float64) error {
	v, err := c.WithLabels()
	if err != nil {
		return err
	}
	return v.Add(delta)
}

func (c *Counter) Collect() []Sample {
	var out []Sample
	c.each(func(labels []LabelPair, v *atomicFloat64) {
		out = append(out, Sample{Name: c.name, Labels: labels, Value: v.Load()})
	})
	return out
}

// CounterVec is a single labelled counter.
type CounterVec struct {
	value *atomicFloat64
}

func (v *CounterVec) Inc() error {
	return v.Add(1)
}

func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	v.value.Add(delta)
	return nil
}

// Value returns the current count.
func (v *CounterVec) Value() float64 {
	return v.value.Load()
}

// ============================================================================
// Gauge
// ============================================================================

// Gauge is a value that can go up and down.
type Gauge struct {
	family[atomicFloat64]
}

func newGauge(name, help string, labelNames []string) *Gauge {
	g := &Gauge{}
	g.init(name, help, labelNames, func() *atomicFloat64 { return new(atomicFloat64) })
	return g
}

func (g *Gauge) Type() MetricType { return MetricTypeGauge }

// WithLabels returns the gauge child for the given label values.
func (g *Gauge) WithLabels(values ...string) (*GaugeVec, error) {
	v, err := g.with(values)
	if err != nil {
		return nil, err
	}
	return &GaugeVec{value: v}, nil
}

// Set sets an unlabelled gauge.
func (g *Gauge) Set(value float64) error {
	v, err := g.WithLabels()
	if err != nil {
		return err
	}
	v.Set(value)
	return nil
}

func (g *Gauge) Collect() []Sample {
	var out []Sample
	g.each(func(labels []LabelPair, v *atomicFloat64) {
		out = append(out, Sample{Name: g.name, Labels: labels, Value: v.Load()})
	})
	return out
}

// GaugeVec is a single labelled gauge.
type GaugeVec struct {
	value *atomicFloat64
}

func (v *GaugeVec) Set(value float64) { v.value.Store(value) }

func (v *GaugeVec) Inc() { v.value.Add(1) }

func (v *GaugeVec) Dec() { v.value.Add(-1) }

func (v *GaugeVec) Add(delta float64) { v.value.Add(delta) }

func (v *GaugeVec) Value() float64 { return v.value.Load() }

// ============================================================================
// Histogram
// ============================================================================

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	family[histogramValue]
	buckets []float64
}

type histogramValue struct {
	mu     sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

func newHistogram(name, help string, buckets []float64, labelNames []string) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	sorted := slices.Clone(buckets)
	slices.Sort(sorted)
	h := &Histogram{buckets: sorted}
	h.init(name, help, labelNames, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(sorted))}
	})
	return h
}

func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// WithLabels returns the histogram child for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramVec, error) {
	v, err := h.with(values)
	if err != nil {
		return nil, err
	}
	return &HistogramVec{value: v, buckets: h.buckets}, nil
}

// Observe records a value on an unlabelled histogram.
func (h *Histogram) Observe(value float64) error {
	v, err := h.WithLabels()
	if err != nil {
		return err
	}
	v.Observe(value)
	return nil
}

func (h *Histogram) Collect() []Sample {
	var out []Sample
	h.each(func(labels []LabelPair, v *histogramValue) {
		v.mu.Lock()
		counts := slices.Clone(v.counts)
		sum, count := v.sum, v.count
		v.mu.Unlock()

		var cumulative uint64
		for i, le := range h.buckets {
			cumulative += counts[i]
			out = append(out, Sample{
				Name:   h.name + "_bucket",
				Labels: withLabel(labels, "le", formatFloat(le)),
				Value:  float64(cumulative),
			})
		}
		out = append(out,
			Sample{Name: h.name + "_bucket", Labels: withLabel(labels, "le", "+Inf"), Value: float64(count)},
			Sample{Name: h.name + "_sum", Labels: labels, Value: sum},
			Sample{Name: h.name + "_count", Labels: labels, Value: float64(count)},
		)
	})
	return out
}

func withLabel(labels []LabelPair, name, value string) []LabelPair {
	out := make([]LabelPair, 0, len(labels)+1)
	out = append(out, labels...)
	return append(out, LabelPair{Name: name, Value: value})
}

// HistogramVec is a single labelled histogram.
type HistogramVec struct {
	value   *histogramValue
	buckets []float64
}

func (v *HistogramVec) Observe(value float64) {
	i, _ := slices.BinarySearch(v.buckets, value)
	v.value.mu.Lock()
	if i < len(v.value.counts) {
		v.value.counts[i]++
	}
	v.value.sum += value
	v.value.count++
	v.value.mu.Unlock()
}

// Count returns the number of observations.
func (v *HistogramVec) Count() uint64 {
	v.value.mu.Lock()
	defer v.value.mu.Unlock()
	return v.value.count
}

// formatFloat formats a float64 for Prometheus output.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// DefaultBuckets are histogram buckets for connection durations, in seconds.
var DefaultBuckets = []float64{
	0.005, 0.01, 0.05, 0.1, 0.5,
	1, 5, 10, 30, 60,
	300, 900, 3600,
}

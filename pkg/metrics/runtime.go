package metrics

import (
	"runtime"
	"runtime/pprof"
	"time"
)

// RuntimeCollector exposes Go runtime gauges plus process uptime. Values are
// sampled on every gather, so no background goroutine is needed.
type RuntimeCollector struct {
	startTime time.Time

	uptime      *Gauge
	goroutines  *Gauge
	threads     *Gauge
	heapAlloc   *Gauge
	heapInuse   *Gauge
	heapObjects *Gauge
	stackInuse  *Gauge
	gcPause     *Gauge
	numGC       *Gauge
}

// NewRuntimeCollector registers the runtime gauges on r and hooks them into gathering.
func NewRuntimeCollector(r *Registry) *RuntimeCollector {
	rc := &RuntimeCollector{
		startTime:   time.Now(),
		uptime:      r.NewGauge("superserver_uptime_seconds", "Process uptime in seconds"),
		goroutines:  r.NewGauge("go_goroutines", "Number of goroutines that currently exist"),
		threads:     r.NewGauge("go_threads", "Number of OS threads created"),
		heapAlloc:   r.NewGauge("go_memstats_heap_alloc_bytes", "Number of heap bytes allocated and still in use"),
		heapInuse:   r.NewGauge("go_memstats_heap_inuse_bytes", "Number of heap bytes that are in use"),
		heapObjects: r.NewGauge("go_memstats_heap_objects", "Number of allocated heap objects"),
		stackInuse:  r.NewGauge("go_memstats_stack_inuse_bytes", "Number of bytes in use by the stack allocator"),
		gcPause:     r.NewGauge("go_gc_pause_seconds_total", "Total GC pause duration in seconds"),
		numGC:       r.NewGauge("go_gc_cycles_total", "Total number of completed GC cycles"),
	}

	info := r.NewGauge("go_info", "Information about the Go environment", "version")
	if vec, err := info.WithLabels(runtime.Version()); err == nil {
		vec.Set(1)
	}

	r.OnGather(rc.Collect)
	return rc
}

// Collect refreshes every runtime gauge.
func (rc *RuntimeCollector) Collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	_ = rc.uptime.Set(time.Since(rc.startTime).Seconds())
	_ = rc.goroutines.Set(float64(runtime.NumGoroutine()))
	if p := pprof.Lookup("threadcreate"); p != nil {
		_ = rc.threads.Set(float64(p.Count()))
	}
	_ = rc.heapAlloc.Set(float64(mem.HeapAlloc))
	_ = rc.heapInuse.Set(float64(mem.HeapInuse))
	_ = rc.heapObjects.Set(float64(mem.HeapObjects))
	_ = rc.stackInuse.Set(float64(mem.StackInuse))
	// PauseTotalNs is cumulative; PauseNs is a 256-entry ring.
	_ = rc.gcPause.Set(float64(mem.PauseTotalNs) / 1e9)
	_ = rc.numGC.Set(float64(mem.NumGC))
}

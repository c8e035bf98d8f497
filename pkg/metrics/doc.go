// Package metrics turns server runtime events into Prometheus metrics.
//
// Two backends implement server.Recorder:
//
//   - builtin: a small in-process registry (Counter, Gauge, Histogram) that
//     renders the Prometheus text format (text/plain; version=0.0.4) itself
//     and adds Go runtime gauges sampled at scrape time.
//   - prometheus: client_golang collectors on a private registry, served
//     through promhttp.
//
// Both expose the same families, labelled by protocol and transport:
//
//   - superserver_connections_total
//   - superserver_connections_active
//   - superserver_requests_total
//   - superserver_bytes_received_total
//   - superserver_bytes_sent_total
//   - superserver_errors_total
//   - superserver_rate_limited_total
//   - superserver_idle_timeouts_total
//   - superserver_connection_duration_seconds
//
// Usage:
//
//	backend, err := metrics.New(cfg.Metrics.Backend)
//	if err != nil {
//		return err
//	}
//	srv := server.NewStreamServer(streamCfg, handler, server.WithRecorder(backend))
//	mux.Handle("/metrics", backend.Handler())
package metrics

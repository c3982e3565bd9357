// Package prometheus renders authgate metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps an [authgate.Engine] and exposes an
// [http.Handler] for GET /metrics. Counters are named authgate_*_total; the
// one histogram is authgate_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus

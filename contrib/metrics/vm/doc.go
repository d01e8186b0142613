// Package vm provides a VictoriaMetrics-based implementation of the MetricsCollector interface.
//
// This package uses github.com/VictoriaMetrics/metrics for lightweight,
// high-performance Prometheus-compatible metrics collection.
//
// # Basic Usage
//
// Create a collector with the default prefix "meridian":
//
//	collector := vm.New()
//	router, _ := meridian.NewRouter(directory, endpoint,
//	    meridian.WithMetrics(collector),
//	)
//
// # Custom Prefix
//
// Use WithPrefix to customize the metric name prefix:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//
// This produces metrics like:
//   - myapp_requests_total{region="East US"}
//   - myapp_request_duration_seconds{region="West Europe"}
//
// # Exposing Metrics
//
// Use the Handler method to expose metrics via HTTP:
//
//	http.HandleFunc("/metrics", collector.Handler)
//	http.ListenAndServe(":8080", nil)
//
// Or use WritePrometheus to write metrics to a custom writer:
//
//	collector.WritePrometheus(w)
//
// # Metrics Provided
//
// Requests:
//   - {prefix}_requests_total{region} - Counter of transport attempts
//   - {prefix}_request_errors_total{region} - Counter of failed attempts
//   - {prefix}_request_duration_seconds{region} - Histogram of attempt latencies
//
// Failover:
//   - {prefix}_failover_total{from,to} - Counter of regional failover events
//   - {prefix}_last_resort_fallback_total - Counter of last-resort write fallbacks
//
// Endpoint availability:
//   - {prefix}_endpoint_marked_unavailable_total{operation} - Counter of unavailability marks
//   - {prefix}_unavailable_endpoints - Gauge of currently marked endpoints
//
// Partition circuit breaker:
//   - {prefix}_circuit_state{region} - Gauge of circuit state (0=healthy, 1=tentative, 2=unhealthy)
//   - {prefix}_circuit_trips_total{region} - Counter of circuit trips
//   - {prefix}_probe_allowed_total{region} - Counter of admitted recovery probes
package vm

package vm

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/arloliu/meridian/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix.
//
// Default: "meridian"
//
// Parameters:
//   - prefix: The prefix to use for all metric names
//
// Returns:
//   - Option: A configuration option
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithMetricsSet sets the metrics set to use.
//
// If provided, the collector registers metrics with this set instead of
// creating a new one. The caller is responsible for exposing the set
// (e.g. via metrics.WritePrometheus or a custom handler).
//
// Parameters:
//   - set: The metrics set to use
//
// Returns:
//   - Option: A configuration option
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

// Collector implements types.MetricsCollector using VictoriaMetrics.
//
// Region names arrive as dynamic label values, so counters and histograms
// are created lazily per region via GetOrCreate. Thread-safe for concurrent
// use.
type Collector struct {
	set    *metrics.Set
	prefix string

	// Gauge backing values, registered once per label value.
	unavailableEndpoints atomic.Int64
	circuitStates        sync.Map // region -> *atomic.Int64
}

// Compile-time assertion that Collector implements types.MetricsCollector.
var _ types.MetricsCollector = (*Collector)(nil)

// New creates a new VictoriaMetrics-based metrics collector.
//
// The collector creates its own metrics.Set and registers it globally
// unless WithMetricsSet is provided.
//
// Parameters:
//   - opts: Configuration options (e.g. WithPrefix)
//
// Returns:
//   - *Collector: A new metrics collector ready for use
//
// Example:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//	router, _ := meridian.NewRouter(directory, endpoint,
//	    meridian.WithMetrics(collector),
//	)
func New(opts ...Option) *Collector {
	c := &Collector{
		prefix: "meridian",
	}

	for _, opt := range opts {
		opt(c)
	}

	// If no set is provided, create a new one and register it globally.
	// If a set is provided, we assume the caller manages it.
	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.set.NewGauge(fmt.Sprintf(`%s_unavailable_endpoints`, c.prefix), func() float64 {
		return float64(c.unavailableEndpoints.Load())
	})

	return c
}

// Set returns the underlying metrics set.
func (c *Collector) Set() *metrics.Set {
	return c.set
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
//
// Example:
//
//	http.HandleFunc("/metrics", collector.Handler)
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.set.WritePrometheus(w)
}

// WritePrometheus writes all metrics in Prometheus format to the given writer.
//
// Parameters:
//   - w: The writer to write metrics to
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

// ----------------------
// Requests
// ----------------------

// IncRequestTotal increments the total request counter for a region.
func (c *Collector) IncRequestTotal(region string) {
	c.set.GetOrCreateCounter(fmt.Sprintf(`%s_requests_total{region=%q}`, c.prefix, region)).Inc()
}

// IncRequestError increments the request error counter for a region.
func (c *Collector) IncRequestError(region string) {
	c.set.GetOrCreateCounter(fmt.Sprintf(`%s_request_errors_total{region=%q}`, c.prefix, region)).Inc()
}

// ObserveRequestDuration records an attempt duration in seconds.
func (c *Collector) ObserveRequestDuration(region string, seconds float64) {
	c.set.GetOrCreateHistogram(fmt.Sprintf(`%s_request_duration_seconds{region=%q}`, c.prefix, region)).Update(seconds)
}

// ----------------------
// Failover
// ----------------------

// IncRegionalFailover increments the regional failover counter.
func (c *Collector) IncRegionalFailover(fromRegion, toRegion string) {
	c.set.GetOrCreateCounter(fmt.Sprintf(`%s_failover_total{from=%q,to=%q}`, c.prefix, fromRegion, toRegion)).Inc()
}

// IncLastResortFallback increments the last-resort fallback counter.
func (c *Collector) IncLastResortFallback() {
	c.set.GetOrCreateCounter(fmt.Sprintf(`%s_last_resort_fallback_total`, c.prefix)).Inc()
}

// ----------------------
// Endpoint availability
// ----------------------

// IncEndpointMarkedUnavailable increments the unavailability mark counter.
func (c *Collector) IncEndpointMarkedUnavailable(op types.OperationType) {
	c.set.GetOrCreateCounter(fmt.Sprintf(`%s_endpoint_marked_unavailable_total{operation=%q}`, c.prefix, op.String())).Inc()
}

// SetUnavailableEndpointCount sets the unavailable endpoint gauge.
func (c *Collector) SetUnavailableEndpointCount(count int) {
	c.unavailableEndpoints.Store(int64(count))
}

// ----------------------
// Partition circuit breaker
// ----------------------

// SetCircuitState sets the circuit state gauge for a region
// (0=healthy, 1=tentative, 2=unhealthy).
func (c *Collector) SetCircuitState(region string, state int) {
	v, loaded := c.circuitStates.Load(region)
	if !loaded {
		v, loaded = c.circuitStates.LoadOrStore(region, &atomic.Int64{})
		if !loaded {
			val := v.(*atomic.Int64)
			c.set.NewGauge(fmt.Sprintf(`%s_circuit_state{region=%q}`, c.prefix, region), func() float64 {
				return float64(val.Load())
			})
		}
	}

	v.(*atomic.Int64).Store(int64(state))
}

// IncCircuitTrip increments the circuit trip counter for a region.
func (c *Collector) IncCircuitTrip(region string) {
	c.set.GetOrCreateCounter(fmt.Sprintf(`%s_circuit_trips_total{region=%q}`, c.prefix, region)).Inc()
}

// IncProbeAllowed increments the recovery probe counter for a region.
func (c *Collector) IncProbeAllowed(region string) {
	c.set.GetOrCreateCounter(fmt.Sprintf(`%s_probe_allowed_total{region=%q}`, c.prefix, region)).Inc()
}

package testutil

import (
	"sync"

	"github.com/arloliu/meridian/types"
)

// TestMetricsCollector is a test implementation of types.MetricsCollector
// that records method calls for assertion in tests.
type TestMetricsCollector struct {
	mu sync.RWMutex

	// Requests
	RequestTotal    map[string]int64
	RequestErrors   map[string]int64
	RequestDuration map[string][]float64

	// Failover
	FailoverTotal      map[string]int64 // key: "from->to"
	LastResortFallback int64

	// Endpoint availability
	MarkedUnavailable    map[types.OperationType]int64
	UnavailableEndpoints int

	// Partition circuit breaker
	CircuitState map[string]int
	CircuitTrips map[string]int64
	ProbeAllowed map[string]int64
}

// Compile-time assertion that TestMetricsCollector implements types.MetricsCollector.
var _ types.MetricsCollector = (*TestMetricsCollector)(nil)

// NewTestMetricsCollector creates a new test metrics collector.
func NewTestMetricsCollector() *TestMetricsCollector {
	return &TestMetricsCollector{
		RequestTotal:      make(map[string]int64),
		RequestErrors:     make(map[string]int64),
		RequestDuration:   make(map[string][]float64),
		FailoverTotal:     make(map[string]int64),
		MarkedUnavailable: make(map[types.OperationType]int64),
		CircuitState:      make(map[string]int),
		CircuitTrips:      make(map[string]int64),
		ProbeAllowed:      make(map[string]int64),
	}
}

// IncRequestTotal records a transport attempt against a region.
func (c *TestMetricsCollector) IncRequestTotal(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RequestTotal[region]++
}

// IncRequestError records a failed attempt against a region.
func (c *TestMetricsCollector) IncRequestError(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RequestErrors[region]++
}

// ObserveRequestDuration records an attempt duration.
func (c *TestMetricsCollector) ObserveRequestDuration(region string, seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RequestDuration[region] = append(c.RequestDuration[region], seconds)
}

// IncRegionalFailover records a regional failover event.
func (c *TestMetricsCollector) IncRegionalFailover(fromRegion, toRegion string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FailoverTotal[fromRegion+"->"+toRegion]++
}

// IncLastResortFallback records a last-resort write fallback.
func (c *TestMetricsCollector) IncLastResortFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastResortFallback++
}

// IncEndpointMarkedUnavailable records an endpoint unavailability mark.
func (c *TestMetricsCollector) IncEndpointMarkedUnavailable(op types.OperationType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MarkedUnavailable[op]++
}

// SetUnavailableEndpointCount records the unavailable endpoint gauge.
func (c *TestMetricsCollector) SetUnavailableEndpointCount(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UnavailableEndpoints = count
}

// SetCircuitState records the circuit state gauge for a region.
func (c *TestMetricsCollector) SetCircuitState(region string, state int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CircuitState[region] = state
}

// IncCircuitTrip records a circuit trip for a region.
func (c *TestMetricsCollector) IncCircuitTrip(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CircuitTrips[region]++
}

// IncProbeAllowed records an admitted recovery probe for a region.
func (c *TestMetricsCollector) IncProbeAllowed(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ProbeAllowed[region]++
}

// FailoverCount returns the recorded failover count between two regions.
func (c *TestMetricsCollector) FailoverCount(from, to string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.FailoverTotal[from+"->"+to]
}

// RequestCount returns the recorded attempt count for a region.
func (c *TestMetricsCollector) RequestCount(region string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.RequestTotal[region]
}

// ProbeCount returns the recorded probe admissions for a region.
func (c *TestMetricsCollector) ProbeCount(region string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ProbeAllowed[region]
}

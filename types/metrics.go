package types

// MetricsCollector defines methods for collecting operational metrics.
//
// Region-scoped methods accept the canonical region name for labeling.
// Implementations should be thread-safe as methods may be called
// concurrently from every in-flight request.
//
// Example usage with VictoriaMetrics (via contrib/metrics/vm):
//
//	import vmmetrics "github.com/arloliu/meridian/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("myapp"))
//	router, _ := meridian.NewRouter(directory, defaultEndpoint,
//	    meridian.WithMetrics(collector),
//	)
type MetricsCollector interface {
	// ----------------------
	// Requests
	// ----------------------

	// IncRequestTotal increments the attempt counter for a region.
	IncRequestTotal(region string)

	// IncRequestError increments the failed-attempt counter for a region.
	IncRequestError(region string)

	// ObserveRequestDuration records an attempt duration in seconds.
	ObserveRequestDuration(region string, seconds float64)

	// ----------------------
	// Failover
	// ----------------------

	// IncRegionalFailover increments the failover counter.
	// Called when the retry policy advances a request to the next region.
	IncRegionalFailover(fromRegion, toRegion string)

	// IncLastResortFallback increments the counter for requests resolved
	// through the global fallback path after exhausting all candidates.
	IncLastResortFallback()

	// ----------------------
	// Endpoint Unavailability
	// ----------------------

	// IncEndpointMarkedUnavailable increments the counter when an
	// endpoint is marked unavailable for an operation type.
	IncEndpointMarkedUnavailable(operation OperationType)

	// SetUnavailableEndpointCount sets the gauge of currently marked
	// endpoints (including entries whose window has not been checked yet).
	SetUnavailableEndpointCount(count int)

	// ----------------------
	// Partition Circuit Breaker
	// ----------------------

	// SetCircuitState sets the circuit state gauge for a region.
	// State values: 0=healthy, 1=unhealthy-tentative, 2=unhealthy.
	SetCircuitState(region string, state int)

	// IncCircuitTrip increments the counter when a (partition, region)
	// pair transitions away from healthy.
	IncCircuitTrip(region string)

	// IncProbeAllowed increments the counter when a cooled-down circuit
	// admits its single recovery probe.
	IncProbeAllowed(region string)
}

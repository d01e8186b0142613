// Package metrics provides internal metrics utilities for Meridian.
package metrics

import "github.com/arloliu/meridian/types"

// NopMetrics is a no-op metrics collector that discards all metrics.
//
// This is used as the default metrics collector when no collector is
// configured, avoiding nil checks throughout the codebase.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements types.MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNopMetrics creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A collector that discards all metrics
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// ----------------------
// Requests
// ----------------------

// IncRequestTotal discards the metric.
func (m *NopMetrics) IncRequestTotal(_ string) {}

// IncRequestError discards the metric.
func (m *NopMetrics) IncRequestError(_ string) {}

// ObserveRequestDuration discards the metric.
func (m *NopMetrics) ObserveRequestDuration(_ string, _ float64) {}

// ----------------------
// Failover
// ----------------------

// IncRegionalFailover discards the metric.
func (m *NopMetrics) IncRegionalFailover(_, _ string) {}

// IncLastResortFallback discards the metric.
func (m *NopMetrics) IncLastResortFallback() {}

// ----------------------
// Endpoint Unavailability
// ----------------------

// IncEndpointMarkedUnavailable discards the metric.
func (m *NopMetrics) IncEndpointMarkedUnavailable(_ types.OperationType) {}

// SetUnavailableEndpointCount discards the metric.
func (m *NopMetrics) SetUnavailableEndpointCount(_ int) {}

// ----------------------
// Partition Circuit Breaker
// ----------------------

// SetCircuitState discards the metric.
func (m *NopMetrics) SetCircuitState(_ string, _ int) {}

// IncCircuitTrip discards the metric.
func (m *NopMetrics) IncCircuitTrip(_ string) {}

// IncProbeAllowed discards the metric.
func (m *NopMetrics) IncProbeAllowed(_ string) {}

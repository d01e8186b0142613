// Package types provides shared types and errors for the Meridian library.
//
// This is a "leaf" package with no imports from other meridian packages,
// allowing it to be imported by any package without causing import cycles.
package types

import (
	"errors"
	"strconv"

	"github.com/google/uuid"
)

// OperationType classifies a logical request as a read or a write.
//
// The classification drives endpoint selection (reads may be served by any
// readable region, writes only by writable regions) and scopes endpoint
// unavailability marks.
type OperationType string

// String returns the string representation of the OperationType.
func (o OperationType) String() string {
	return string(o)
}

const (
	// OperationRead covers point reads, queries and feed operations.
	OperationRead OperationType = "Read"
	// OperationWrite covers creates, replaces, upserts and deletes.
	OperationWrite OperationType = "Write"
)

// IsWrite reports whether the operation mutates data.
func (o OperationType) IsWrite() bool {
	return o == OperationWrite
}

// ResourceType identifies the kind of resource a request addresses.
//
// The routing core treats it as an opaque label; it only appears in log
// messages and metrics.
type ResourceType string

// Common resource types.
const (
	ResourceDatabase  ResourceType = "database"
	ResourceContainer ResourceType = "container"
	ResourceDocument  ResourceType = "document"
)

// Region describes a geographic deployment of the database account.
//
// Regions are immutable once read from the account topology; routing code
// copies them by value and never mutates them.
type Region struct {
	// Name is the canonical region name (e.g. "East US", "West Europe").
	Name string `json:"name" yaml:"name"`

	// Endpoint is the regional gateway endpoint URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// AlternateEndpoint is an optional secondary endpoint exposed by some
	// regions for the same logical location. Empty when not available.
	AlternateEndpoint string `json:"alternateEndpoint,omitempty" yaml:"alternateEndpoint,omitempty"`
}

// RoutingContext is a resolved routing target for one region: the primary
// endpoint plus an optional alternate endpoint for the same location.
//
// Contexts are rebuilt from the topology every time the location cache
// produces candidate lists, so they are always consistent with the last
// account read.
type RoutingContext struct {
	// Primary is the region this context routes to.
	Primary Region

	// Alternate is the secondary region entry for the same logical
	// location, or nil when the region exposes a single endpoint.
	Alternate *Region
}

// PrimaryEndpoint returns the primary endpoint URL for this context.
func (r RoutingContext) PrimaryEndpoint() string {
	return r.Primary.Endpoint
}

// PartitionKeyRange identifies one physical partition of a container.
//
// The partitioning layer supplies these; the routing core treats them as
// opaque comparable keys and never inspects the fields.
type PartitionKeyRange struct {
	// Collection is the owning container's identity (e.g. its resource ID
	// or self link).
	Collection string

	// RangeID is the partition key range identifier within the container.
	RangeID string
}

// Sentinel errors for common failure scenarios.
var (
	// ErrInvalidExcludedLocations indicates a nil excluded-locations list
	// was supplied where an explicit empty list is required to clear
	// exclusions.
	ErrInvalidExcludedLocations = errors.New("meridian: excluded locations cannot be nil, pass an empty list to clear exclusions")

	// ErrNilDirectory indicates a nil region directory was provided.
	ErrNilDirectory = errors.New("meridian: region directory cannot be nil")

	// ErrNoDefaultEndpoint indicates the router was constructed without a
	// global (default) endpoint.
	ErrNoDefaultEndpoint = errors.New("meridian: default endpoint cannot be empty")
)

// Request carries the routing-relevant attributes of one logical operation.
//
// A Request is owned by a single logical operation and is NOT safe for
// concurrent use; each in-flight operation builds its own Request. The retry
// policy mutates the request (route pinning, circuit-breaker exclusions)
// between attempts.
type Request struct {
	// ID is a correlation identifier for log messages and tracing.
	ID uuid.UUID

	// ResourceType is the kind of resource being addressed.
	ResourceType ResourceType

	// Operation classifies the request as a read or a write.
	Operation OperationType

	// PartitionKeyRange identifies the physical partition the request
	// targets, or nil for operations without partition affinity.
	PartitionKeyRange *PartitionKeyRange

	// UsePreferredLocations controls whether preference ordering, client
	// exclusions and unavailability marks participate in resolution.
	// Defaults to true; the retry policy sets it to false only for the
	// last-resort global fallback.
	UsePreferredLocations bool

	// routeToEndpoint pins resolution to a specific endpoint. Set by the
	// retry policy so a retried request targets the next candidate.
	routeToEndpoint string

	// excludedLocations is the per-request exclusion list. nil means the
	// caller never supplied one; an empty non-nil slice means exclusions
	// were explicitly cleared.
	excludedLocations []string

	// excludedCircuitBreaker holds region names the partition health
	// tracker currently reports as circuit-broken for this request's
	// partition. Populated exclusively by the router/retry policy.
	excludedCircuitBreaker []string
}

// NewRequest creates a request for one logical operation.
//
// Parameters:
//   - op: Read or write classification
//   - resource: The resource kind being addressed
//
// Returns:
//   - *Request: A request with UsePreferredLocations enabled
func NewRequest(op OperationType, resource ResourceType) *Request {
	return &Request{
		ID:                    uuid.New(),
		ResourceType:          resource,
		Operation:             op,
		UsePreferredLocations: true,
	}
}

// SetExcludedLocations sets the per-request excluded region names.
//
// A nil list is rejected: callers that want to clear exclusions must pass an
// explicit empty list. This mirrors the distinction between "option absent"
// and "option set to nothing".
//
// Parameters:
//   - locations: Region names to exclude for this request only
//
// Returns:
//   - error: ErrInvalidExcludedLocations if locations is nil
func (r *Request) SetExcludedLocations(locations []string) error {
	if locations == nil {
		return ErrInvalidExcludedLocations
	}

	r.excludedLocations = append([]string(nil), locations...)

	return nil
}

// ExcludedLocations returns the per-request excluded region names.
//
// Returns:
//   - []string: The exclusion list; nil when never set
func (r *Request) ExcludedLocations() []string {
	return r.excludedLocations
}

// SetCircuitBreakerExcludedLocations replaces the circuit-breaker exclusion
// list for this request.
//
// This is populated by the router from the partition health tracker before
// resolution; applications should not call it directly.
//
// Parameters:
//   - regions: Region names currently circuit-broken for this partition
func (r *Request) SetCircuitBreakerExcludedLocations(regions []string) {
	r.excludedCircuitBreaker = regions
}

// CircuitBreakerExcludedLocations returns the circuit-broken region names
// attached to this request.
//
// Returns:
//   - []string: Region names, or nil when none
func (r *Request) CircuitBreakerExcludedLocations() []string {
	return r.excludedCircuitBreaker
}

// SetRouteToEndpoint pins resolution to the given endpoint.
//
// Parameters:
//   - endpoint: The endpoint URL to route to
func (r *Request) SetRouteToEndpoint(endpoint string) {
	r.routeToEndpoint = endpoint
}

// RouteToEndpoint returns the pinned endpoint, or empty when unpinned.
func (r *Request) RouteToEndpoint() string {
	return r.routeToEndpoint
}

// ClearRouteToEndpoint removes the route pin so resolution falls back to
// candidate selection.
func (r *Request) ClearRouteToEndpoint() {
	r.routeToEndpoint = ""
}

// FailureKind classifies a failed attempt for retry decisions.
//
// Retriable kinds drive regional failover; non-retriable kinds propagate to
// the caller on first occurrence without consuming a regional attempt.
type FailureKind int

const (
	// FailureUnknown is an unclassified failure. Not retriable.
	FailureUnknown FailureKind = iota
	// FailureTimeout is a client-observed timeout (deadline exceeded).
	FailureTimeout
	// FailureRequestTimeout is a server-reported request timeout (408).
	FailureRequestTimeout
	// FailureInternalError is a server internal error (500).
	FailureInternalError
	// FailureBadGateway is a gateway failure (502).
	FailureBadGateway
	// FailureServiceUnavailable is a service unavailable response (503).
	FailureServiceUnavailable
	// FailureConnection is a connection-level failure (refused, reset,
	// DNS) before a service response was received.
	FailureConnection
	// FailureBadRequest is a malformed request (400-class validation).
	FailureBadRequest
	// FailureUnauthorized is an authentication or authorization failure.
	FailureUnauthorized
)

// failureKindNames maps kinds to display names for logs and metrics.
var failureKindNames = map[FailureKind]string{
	FailureUnknown:            "unknown",
	FailureTimeout:            "timeout",
	FailureRequestTimeout:     "request_timeout",
	FailureInternalError:      "internal_error",
	FailureBadGateway:         "bad_gateway",
	FailureServiceUnavailable: "service_unavailable",
	FailureConnection:         "connection",
	FailureBadRequest:         "bad_request",
	FailureUnauthorized:       "unauthorized",
}

// String returns the display name of the failure kind.
func (k FailureKind) String() string {
	if name, ok := failureKindNames[k]; ok {
		return name
	}

	return "kind_" + strconv.Itoa(int(k))
}

// Retriable reports whether the failure kind should drive regional failover.
func (k FailureKind) Retriable() bool {
	switch k {
	case FailureTimeout, FailureRequestTimeout, FailureInternalError,
		FailureBadGateway, FailureServiceUnavailable, FailureConnection:
		return true
	default:
		return false
	}
}

// ClassifyStatusCode maps an HTTP-style status code to a FailureKind.
//
// Parameters:
//   - code: The service response status code
//
// Returns:
//   - FailureKind: The classification; FailureUnknown for unmapped codes
func ClassifyStatusCode(code int) FailureKind {
	switch code {
	case 408:
		return FailureRequestTimeout
	case 500:
		return FailureInternalError
	case 502:
		return FailureBadGateway
	case 503:
		return FailureServiceUnavailable
	case 401, 403:
		return FailureUnauthorized
	case 400:
		return FailureBadRequest
	default:
		return FailureUnknown
	}
}

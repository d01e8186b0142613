package meridian

import "github.com/arloliu/meridian/types"

// Type aliases for convenience - re-export from types package.
type (
	OperationType     = types.OperationType
	ResourceType      = types.ResourceType
	Region            = types.Region
	RoutingContext    = types.RoutingContext
	PartitionKeyRange = types.PartitionKeyRange
	Request           = types.Request
	Outcome           = types.Outcome
	FailureKind       = types.FailureKind
	TransportError    = types.TransportError
	Logger            = types.Logger
	MetricsCollector  = types.MetricsCollector
)

// Re-export operation type constants for convenience.
const (
	OperationRead  = types.OperationRead
	OperationWrite = types.OperationWrite
)

// Re-export resource type constants for convenience.
const (
	ResourceDatabase  = types.ResourceDatabase
	ResourceContainer = types.ResourceContainer
	ResourceDocument  = types.ResourceDocument
)

// Re-export failure kind constants for convenience.
const (
	FailureUnknown            = types.FailureUnknown
	FailureTimeout            = types.FailureTimeout
	FailureRequestTimeout     = types.FailureRequestTimeout
	FailureInternalError      = types.FailureInternalError
	FailureBadGateway         = types.FailureBadGateway
	FailureServiceUnavailable = types.FailureServiceUnavailable
	FailureConnection         = types.FailureConnection
	FailureBadRequest         = types.FailureBadRequest
	FailureUnauthorized       = types.FailureUnauthorized
)

// NewRequest creates a request for one logical operation.
//
// This is a convenience re-export of types.NewRequest.
//
// Parameters:
//   - op: Read or write classification
//   - resource: The resource kind being addressed
//
// Returns:
//   - *Request: A request with UsePreferredLocations enabled
func NewRequest(op OperationType, resource ResourceType) *Request {
	return types.NewRequest(op, resource)
}

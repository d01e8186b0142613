// Package types provides shared types and error definitions for the
// meridian library.
//
// This is a leaf package with zero meridian imports to prevent import
// cycles. All packages in meridian can safely import this package.
//
// # Types
//
// OperationType classifies a request for routing purposes:
//
//	const (
//	    OperationRead  OperationType = "Read"
//	    OperationWrite OperationType = "Write"
//	)
//
// Region and RoutingContext describe routing targets; PartitionKeyRange is
// the opaque partition identity supplied by the partitioning layer; Request
// carries the per-operation routing state the retry policy mutates between
// attempts.
//
// # Errors
//
// Sentinel errors are provided for common failure scenarios:
//
//   - ErrInvalidExcludedLocations: nil exclusion list where an explicit
//     empty list is required
//   - ErrNilDirectory: a nil region directory was supplied
//   - ErrNoDefaultEndpoint: the router has no global endpoint to fall
//     back to
//
// # Outcomes
//
// Outcome models the result of one transport attempt as an explicit value
// instead of exception-style control flow. FailureKind partitions failures
// into retriable (timeouts, 408/500/502/503, connection failures) and
// non-retriable (validation, authorization) classes; only retriable
// failures drive regional failover.
package types

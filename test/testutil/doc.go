// Package testutil provides test utilities for the meridian project.
//
// This package provides a recording metrics collector for asserting on
// operational metrics, canned multi-region topology snapshots, and helper
// functions for integration tests.
//
// # Topology Helpers
//
// Build a standard three-region topology for routing tests:
//
//	directory := topology.NewDirectoryWithSnapshot(testutil.ThreeRegionSnapshot())
//
// # Metrics Assertions
//
// Capture metrics emitted by the routing core:
//
//	collector := testutil.NewTestMetricsCollector()
//	router, _ := meridian.NewRouter(directory, endpoint,
//	    meridian.WithMetrics(collector),
//	)
//	...
//	require.Equal(t, int64(1), collector.FailoverCount("East US", "West US"))
//
// # Integration Test Helpers
//
//   - StartEmbeddedNATS: Starts an embedded NATS server with JetStream for
//     topology watcher testing
package testutil

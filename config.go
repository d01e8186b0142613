package meridian

import (
	"time"

	"github.com/arloliu/meridian/health"
	"github.com/arloliu/meridian/internal/logging"
	"github.com/arloliu/meridian/internal/metrics"
	"github.com/arloliu/meridian/routing"
	"github.com/arloliu/meridian/topology"
	"github.com/arloliu/meridian/types"
)

// RouterConfig holds configuration for a Router.
type RouterConfig struct {
	// PreferredLocations is the client's ordered region preference list.
	PreferredLocations []string

	// ExcludedLocations is the client-level set of excluded region names.
	ExcludedLocations []string

	// UseMultipleWriteLocations routes writes to every writable region
	// the account exposes instead of only the first.
	UseMultipleWriteLocations bool

	// UnavailableWindow is how long endpoint unavailability marks stay
	// effective.
	UnavailableWindow time.Duration

	// PartitionCircuitBreaker enables per-partition-per-region circuit
	// breaking. Enabled by default.
	PartitionCircuitBreaker bool

	// TrackerOptions configure the partition health tracker (thresholds,
	// cooldown, rate window).
	TrackerOptions []health.TrackerOption

	// Refresher receives forced-refresh requests when unavailability
	// marks signal refresh intent. Optional.
	Refresher *topology.Refresher

	// Metrics collects operational metrics. Defaults to a no-op
	// collector.
	Metrics types.MetricsCollector

	// Logger receives structured log messages. Defaults to a no-op
	// logger.
	Logger types.Logger
}

// DefaultConfig returns a RouterConfig with sensible defaults.
//
// Returns:
//   - *RouterConfig: Configuration with default settings
func DefaultConfig() *RouterConfig {
	return &RouterConfig{
		UnavailableWindow:       routing.DefaultUnavailableWindow,
		PartitionCircuitBreaker: true,
		Metrics:                 metrics.NewNopMetrics(),
		Logger:                  logging.NewNopLogger(),
	}
}

// Option configures a RouterConfig.
type Option func(*RouterConfig)

// WithPreferredLocations sets the client's ordered region preference list.
//
// Parameters:
//   - locations: Region names in preference order
//
// Returns:
//   - Option: Configuration option
func WithPreferredLocations(locations ...string) Option {
	return func(c *RouterConfig) {
		c.PreferredLocations = locations
	}
}

// WithExcludedLocations sets the client-level excluded region names.
//
// Parameters:
//   - locations: Region names to exclude for every request
//
// Returns:
//   - Option: Configuration option
func WithExcludedLocations(locations ...string) Option {
	return func(c *RouterConfig) {
		c.ExcludedLocations = locations
	}
}

// WithMultipleWriteLocations enables routing writes to every writable
// region.
//
// Parameters:
//   - enabled: true to use all writable regions
//
// Returns:
//   - Option: Configuration option
func WithMultipleWriteLocations(enabled bool) Option {
	return func(c *RouterConfig) {
		c.UseMultipleWriteLocations = enabled
	}
}

// WithUnavailableWindow sets how long endpoint unavailability marks stay
// effective.
//
// Parameters:
//   - d: The unavailability window
//
// Returns:
//   - Option: Configuration option
func WithUnavailableWindow(d time.Duration) Option {
	return func(c *RouterConfig) {
		c.UnavailableWindow = d
	}
}

// WithPartitionCircuitBreaker enables or disables per-partition circuit
// breaking.
//
// Parameters:
//   - enabled: false to disable the partition health tracker
//
// Returns:
//   - Option: Configuration option
func WithPartitionCircuitBreaker(enabled bool) Option {
	return func(c *RouterConfig) {
		c.PartitionCircuitBreaker = enabled
	}
}

// WithTrackerOptions forwards options to the partition health tracker.
//
// Parameters:
//   - opts: Tracker options (thresholds, cooldown, rate window)
//
// Returns:
//   - Option: Configuration option
//
// Example:
//
//	router, _ := meridian.NewRouter(directory, endpoint,
//	    meridian.WithTrackerOptions(
//	        health.WithWriteFailureThreshold(3),
//	        health.WithInitialUnavailableDuration(30*time.Second),
//	    ),
//	)
func WithTrackerOptions(opts ...health.TrackerOption) Option {
	return func(c *RouterConfig) {
		c.TrackerOptions = opts
	}
}

// WithRefresher attaches a topology refresher that receives forced
// refresh requests when endpoint failures signal refresh intent.
//
// Parameters:
//   - refresher: The topology refresher
//
// Returns:
//   - Option: Configuration option
func WithRefresher(refresher *topology.Refresher) Option {
	return func(c *RouterConfig) {
		c.Refresher = refresher
	}
}

// WithMetrics sets the metrics collector.
//
// If not set, a no-op collector is used that discards all metrics.
// Use contrib/metrics/vm.New() for VictoriaMetrics integration.
//
// Parameters:
//   - collector: The metrics collector implementation
//
// Returns:
//   - Option: Configuration option
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *RouterConfig) {
		c.Metrics = collector
	}
}

// WithLogger sets the structured logger.
//
// If not set, a no-op logger is used that discards all messages.
// The logger interface is compatible with zap.SugaredLogger.
//
// Parameters:
//   - logger: The logger implementation
//
// Returns:
//   - Option: Configuration option
//
// Example:
//
//	logger, _ := zap.NewProduction()
//	router, _ := meridian.NewRouter(directory, endpoint,
//	    meridian.WithLogger(logger.Sugar()),
//	)
func WithLogger(logger types.Logger) Option {
	return func(c *RouterConfig) {
		c.Logger = logger
	}
}

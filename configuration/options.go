package configuration

import (
	"time"

	"go.uber.org/zap"

	"github.com/rymeskar/identitymodel/metrics"
)

// Clock provides time functionality for testing.
type Clock interface {
	Now() time.Time
}

// RealClock uses the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Option is a functional option for configuring a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	logger                   *zap.Logger
	clock                    Clock
	metricsRecorder          metrics.Recorder
	documents                DocumentRetriever
	automaticRefreshInterval time.Duration
	refreshInterval          time.Duration
}

// WithLogger returns an option that sets the logger for the manager. When
// set, refresh successes, failures, and stale-fallback decisions are logged.
func WithLogger(logger *zap.Logger) Option {
	return func(o *managerOptions) { o.logger = logger }
}

// WithClock returns an option that sets a custom clock for time operations.
// Used for testing refresh windows without time.Sleep.
func WithClock(clock Clock) Option {
	return func(o *managerOptions) { o.clock = clock }
}

// WithMetricsRecorder returns an option that sets the metrics recorder.
// When set, refresh attempts are recorded.
func WithMetricsRecorder(recorder metrics.Recorder) Option {
	return func(o *managerOptions) { o.metricsRecorder = recorder }
}

// WithDocumentRetriever returns an option that replaces the default HTTP
// document retriever.
func WithDocumentRetriever(docs DocumentRetriever) Option {
	return func(o *managerOptions) { o.documents = docs }
}

// WithAutomaticRefreshInterval returns an option that sets how long a
// successfully fetched configuration is served before a refetch is due.
// Values below MinimumAutomaticRefreshInterval are clamped up.
func WithAutomaticRefreshInterval(d time.Duration) Option {
	return func(o *managerOptions) { o.automaticRefreshInterval = d }
}

// WithRefreshInterval returns an option that sets the minimum spacing between
// manually requested refreshes, which is also the accelerated retry window
// after a failed fetch. Values below MinimumRefreshInterval are clamped up.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *managerOptions) { o.refreshInterval = d }
}

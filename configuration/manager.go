package configuration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rymeskar/identitymodel"
)

// Refresh policy defaults and floors. Setters clamp rather than error so a
// misconfigured caller cannot turn the cache into a hot loop against the
// metadata source.
const (
	DefaultAutomaticRefreshInterval = 12 * time.Hour
	DefaultRefreshInterval          = 5 * time.Minute
	MinimumAutomaticRefreshInterval = 5 * time.Minute
	MinimumRefreshInterval          = time.Second
)

// initLogOnce guards the documented one-time log emission on first manager
// construction. If the first manager is built without a logger the emission
// is skipped; there is no other hidden static state.
var initLogOnce sync.Once

// Manager caches a trust configuration of type T fetched from a single
// metadata address, refreshing it lazily on caller demand.
//
// The fast path reads the cached configuration without locking; the pointer
// swap is atomic, so a caller may observe a configuration that is about to be
// superseded but never a torn value. All mutation happens inside a capacity-1
// critical section with a re-check after acquisition (double-checked
// refresh), so at most one retrieval is in flight per manager at any time.
type Manager[T any] struct {
	metadataAddress string
	retriever       Retriever[T]
	documents       DocumentRetriever
	clock           Clock
	logger          *zap.Logger
	metricsRecorder metricsRecorder

	automaticRefreshInterval time.Duration
	refreshInterval          time.Duration

	// sem is the capacity-1 refresh lock. Acquisition respects the caller's
	// context; the fetch itself never does.
	sem chan struct{}

	current            atomic.Pointer[T]
	syncAfter          atomic.Int64 // unix nanos; do not refetch before this time
	lastRefresh        atomic.Int64 // unix nanos of the last successful fetch
	lastRequestRefresh atomic.Int64 // unix nanos of the last honored RequestRefresh
	lastError          atomic.Pointer[error]
}

// metricsRecorder is the subset of the metrics port the manager uses.
type metricsRecorder interface {
	RecordConfigurationRefresh(address string, success bool)
}

// NewManager creates a manager for the given metadata address and retrieval
// strategy. The document retriever defaults to HTTPS-only HTTP retrieval.
func NewManager[T any](metadataAddress string, retriever Retriever[T], opts ...Option) (*Manager[T], error) {
	if metadataAddress == "" {
		return nil, identitymodel.StructuralError("metadata address must not be empty")
	}
	if retriever == nil {
		return nil, identitymodel.StructuralError("retriever must not be nil")
	}

	options := &managerOptions{
		automaticRefreshInterval: DefaultAutomaticRefreshInterval,
		refreshInterval:          DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.clock == nil {
		options.clock = RealClock{}
	}
	if options.documents == nil {
		options.documents = NewHTTPDocumentRetriever()
	}

	m := &Manager[T]{
		metadataAddress: metadataAddress,
		retriever:       retriever,
		documents:       options.documents,
		clock:           options.clock,
		logger:          options.logger,
		metricsRecorder: options.metricsRecorder,
		sem:             make(chan struct{}, 1),
	}
	m.SetAutomaticRefreshInterval(options.automaticRefreshInterval)
	m.SetRefreshInterval(options.refreshInterval)

	initLogOnce.Do(func() {
		if m.logger != nil {
			m.logger.Info("trust configuration management initialized",
				zap.String("metadata_address", metadataAddress))
		}
	})
	return m, nil
}

// MetadataAddress returns the configured metadata address.
func (m *Manager[T]) MetadataAddress() string { return m.metadataAddress }

// AutomaticRefreshInterval returns the current automatic refresh interval.
func (m *Manager[T]) AutomaticRefreshInterval() time.Duration { return m.automaticRefreshInterval }

// SetAutomaticRefreshInterval sets how long a fetched configuration is served
// before a refetch is due, clamped to MinimumAutomaticRefreshInterval.
func (m *Manager[T]) SetAutomaticRefreshInterval(d time.Duration) {
	if d < MinimumAutomaticRefreshInterval {
		d = MinimumAutomaticRefreshInterval
	}
	m.automaticRefreshInterval = d
}

// RefreshInterval returns the minimum spacing between requested refreshes.
func (m *Manager[T]) RefreshInterval() time.Duration { return m.refreshInterval }

// SetRefreshInterval sets the minimum spacing between requested refreshes,
// clamped to MinimumRefreshInterval.
func (m *Manager[T]) SetRefreshInterval(d time.Duration) {
	if d < MinimumRefreshInterval {
		d = MinimumRefreshInterval
	}
	m.refreshInterval = d
}

// CurrentConfiguration returns the most recently fetched configuration, if
// any. Most recently fetched is not the same as trusted: promotion to
// last-known-good is a separate, explicit step.
func (m *Manager[T]) CurrentConfiguration() (T, bool) {
	if cfg := m.current.Load(); cfg != nil {
		return *cfg, true
	}
	var zero T
	return zero, false
}

// LastRefresh returns the time of the last successful fetch.
func (m *Manager[T]) LastRefresh() time.Time {
	return time.Unix(0, m.lastRefresh.Load())
}

// SyncAfter returns the time before which no refetch will be attempted.
func (m *Manager[T]) SyncAfter() time.Time {
	return time.Unix(0, m.syncAfter.Load())
}

// LastError returns the error of the most recent fetch attempt, nil after a
// success. A non-nil LastError alongside a served configuration means the
// configuration is being served stale.
func (m *Manager[T]) LastError() error {
	if p := m.lastError.Load(); p != nil {
		return *p
	}
	return nil
}

// IsFresh reports whether a configuration is cached and still inside the
// automatic refresh interval of its successful fetch. Stale-on-failure serving
// reports false here while GetConfiguration keeps returning data.
func (m *Manager[T]) IsFresh() bool {
	if m.current.Load() == nil {
		return false
	}
	return m.clock.Now().Before(m.LastRefresh().Add(m.automaticRefreshInterval))
}

// GetConfiguration returns the current trust configuration, fetching it if
// the refresh window has passed.
//
// A cached configuration inside its window is returned immediately with no
// locking and no network access. Otherwise the caller queues for the refresh
// lock; ctx cancels only that caller's wait, never an in-flight fetch, which
// is a shared resource other callers may be waiting on. On fetch failure a
// cached configuration is served stale and the next retry is scheduled at
// min(automaticRefreshInterval, refreshInterval); with nothing cached the
// failure is fatal and names the metadata address.
func (m *Manager[T]) GetConfiguration(ctx context.Context) (T, error) {
	if cfg := m.current.Load(); cfg != nil && m.clock.Now().UnixNano() < m.syncAfter.Load() {
		return *cfg, nil
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		var zero T
		return zero, identitymodel.CancelledError("cancelled while waiting for configuration refresh", ctx.Err())
	}
	defer func() { <-m.sem }()

	// Re-check after acquiring the lock: a concurrent caller may have
	// refreshed while this one was queued.
	now := m.clock.Now()
	var fetchErr error
	if now.UnixNano() >= m.syncAfter.Load() {
		fetchErr = m.refresh(now)
	}

	if cfg := m.current.Load(); cfg != nil {
		if fetchErr != nil && m.logger != nil {
			m.logger.Warn("serving stale trust configuration after refresh failure",
				zap.String("metadata_address", m.metadataAddress),
				zap.Time("last_refresh", m.LastRefresh()),
				zap.Error(fetchErr),
			)
		}
		return *cfg, nil
	}

	var zero T
	return zero, identitymodel.NoConfigurationError(m.metadataAddress, fetchErr)
}

// refresh performs one fetch attempt. Called only while holding the lock.
// The fetch deliberately uses a background context: it is a shared resource
// and must not be aborted by one caller's individual cancellation.
func (m *Manager[T]) refresh(now time.Time) error {
	fetched, err := m.retriever.Retrieve(context.Background(), m.metadataAddress, m.documents)
	if err != nil {
		retryAfter := m.automaticRefreshInterval
		if m.refreshInterval < retryAfter {
			retryAfter = m.refreshInterval
		}
		m.syncAfter.Store(now.Add(retryAfter).UnixNano())
		m.lastError.Store(&err)
		if m.metricsRecorder != nil {
			m.metricsRecorder.RecordConfigurationRefresh(m.metadataAddress, false)
		}
		return err
	}

	m.current.Store(&fetched)
	m.lastRefresh.Store(now.UnixNano())
	m.syncAfter.Store(now.Add(m.automaticRefreshInterval).UnixNano())
	m.lastError.Store(nil)
	if m.metricsRecorder != nil {
		m.metricsRecorder.RecordConfigurationRefresh(m.metadataAddress, true)
	}
	if m.logger != nil {
		m.logger.Info("trust configuration refreshed",
			zap.String("metadata_address", m.metadataAddress),
			zap.Time("sync_after", m.SyncAfter()),
		)
	}
	return nil
}

// RequestRefresh marks the configuration as due for refetch on the next
// GetConfiguration call. A request arriving less than RefreshInterval after
// the last honored request is a no-op: the gate tracks request times, not
// fetch outcomes, so repeated external validation failures cannot cause
// refresh storms against the metadata source even while fetches keep failing.
func (m *Manager[T]) RequestRefresh() {
	now := m.clock.Now()
	if now.Sub(time.Unix(0, m.lastRequestRefresh.Load())) < m.refreshInterval {
		return
	}
	m.lastRequestRefresh.Store(now.UnixNano())
	m.syncAfter.Store(now.UnixNano())
}

package configuration

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rymeskar/identitymodel"
)

// DefaultLKGLifetime is how long a promoted last-known-good configuration
// remains usable as a fallback.
const DefaultLKGLifetime = time.Hour

// LKGManager wraps a Manager with a last-known-good overlay: a configuration
// the caller has explicitly promoted after proving it trustworthy, retained
// independently of fetch recency.
//
// The current configuration is merely "most recently fetched"; the LKG
// configuration is "explicitly promoted after successful validation".
// Promotion happens only through SetLKG, never automatically: freshness is
// not sufficient to be trusted.
type LKGManager[T any] struct {
	*Manager[T]

	useLKG           atomic.Bool
	useCurrentConfig atomic.Bool

	mu          sync.RWMutex
	lkg         *T
	promotedAt  time.Time
	lkgLifetime time.Duration
}

// NewLKGManager creates the overlay over an existing manager. Both policy
// flags default to off.
func NewLKGManager[T any](m *Manager[T]) *LKGManager[T] {
	return &LKGManager[T]{
		Manager:     m,
		lkgLifetime: DefaultLKGLifetime,
	}
}

// UseLKG reports whether callers should fall back to the last-known-good
// configuration when validation against fresh data fails.
func (l *LKGManager[T]) UseLKG() bool { return l.useLKG.Load() }

// SetUseLKG sets the last-known-good fallback flag.
func (l *LKGManager[T]) SetUseLKG(use bool) { l.useLKG.Store(use) }

// UseCurrentConfig reports whether callers should trust the freshly fetched
// configuration.
func (l *LKGManager[T]) UseCurrentConfig() bool { return l.useCurrentConfig.Load() }

// SetUseCurrentConfig sets the fresh-configuration trust flag.
func (l *LKGManager[T]) SetUseCurrentConfig(use bool) { l.useCurrentConfig.Store(use) }

// LKGLifetime returns how long a promotion remains valid.
func (l *LKGManager[T]) LKGLifetime() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lkgLifetime
}

// SetLKGLifetime sets how long a promotion remains valid.
func (l *LKGManager[T]) SetLKGLifetime(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lkgLifetime = d
}

// ApplySettings applies the overlay policy fields of s, leaving unset fields
// at their current values. Nil settings are a no-op.
func (l *LKGManager[T]) ApplySettings(s *RefreshSettings) {
	if s == nil {
		return
	}
	if s.LKGLifetime > 0 {
		l.SetLKGLifetime(time.Duration(s.LKGLifetime))
	}
}

// SetLKG promotes the current configuration to last-known-good. This is the
// only way the LKG slot is populated; the caller must invoke it after it has
// independently confirmed the configuration produced a successful token
// validation. Fails when no configuration has been fetched yet.
func (l *LKGManager[T]) SetLKG() error {
	cfg, ok := l.CurrentConfiguration()
	if !ok {
		return identitymodel.NoConfigurationError(l.MetadataAddress(), nil)
	}

	l.mu.Lock()
	l.lkg = &cfg
	l.promotedAt = l.clock.Now()
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Info("configuration promoted to last-known-good",
			zap.String("metadata_address", l.MetadataAddress()))
	}
	return nil
}

// LKGConfiguration returns the promoted configuration and whether it is still
// valid: promoted, and within the LKG lifetime. A failed or un-promoted fetch
// never changes what this returns.
func (l *LKGManager[T]) LKGConfiguration() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.lkg == nil {
		var zero T
		return zero, false
	}
	if l.clock.Now().After(l.promotedAt.Add(l.lkgLifetime)) {
		var zero T
		return zero, false
	}
	return *l.lkg, true
}

// PromotedAt returns when the LKG configuration was promoted, zero when none
// has been.
func (l *LKGManager[T]) PromotedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.promotedAt
}

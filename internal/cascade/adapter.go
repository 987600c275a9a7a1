// Package cascade composes the priority-ordered set of data-provider
// adapters (akshare/tushare/yfinance/efinance-style) into a single
// manager that normalizes heterogeneous upstream sources into the
// canonical domain types, honoring per-source circuit breakers and
// each adapter's own rate-limit policy.
package cascade

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
)

// Adapter is one upstream data-provider implementation. Negative
// Priority is reserved for "best available when credentials present";
// otherwise smaller values are tried first.
type Adapter interface {
	Name() string
	Priority() int
	IsAvailable() bool

	GetDaily(ctx context.Context, code string, days int) (domain.KLineSeries, errs.Classification, error)
	GetRealtime(ctx context.Context, code string) (*domain.UnifiedQuote, errs.Classification, error)
	GetChip(ctx context.Context, code string) (*domain.ChipDistribution, errs.Classification, error)
}

// breakerLike is satisfied by internal/breaker.Breaker; kept as an
// interface here so the cascade manager doesn't import the concrete
// type twice over (one real breaker instance per named resource class,
// shared across adapters).
type breakerLike interface {
	IsAvailable(name string) bool
	RecordSuccess(name string)
	RecordFailure(name, reason string)
}

// Manager composes adapters in priority order for the three data
// operations spec.md §4.2 names, consulting the supplied breakers
// before each attempt and reporting outcomes after.
type Manager struct {
	adapters       []Adapter
	realtimeBreaker breakerLike
	chipBreaker     breakerLike
	log             zerolog.Logger
}

// NewManager builds a cascade manager. Adapters need not be pre-sorted;
// New sorts them by Priority ascending (skip/negative-last semantics are
// left to IsAvailable()).
func NewManager(adapters []Adapter, realtimeBreaker, chipBreaker breakerLike, log zerolog.Logger) *Manager {
	sorted := make([]Adapter, len(adapters))
	copy(sorted, adapters)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Priority() < sorted[j-1].Priority(); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Manager{
		adapters:        sorted,
		realtimeBreaker: realtimeBreaker,
		chipBreaker:     chipBreaker,
		log:             log.With().Str("component", "cascade_manager").Logger(),
	}
}

// GetDaily dispatches to each adapter's daily K-line path in priority
// order. Unlike realtime/chip, daily history has no "absence is fine"
// escape hatch: exhausting every adapter raises an error.
func (m *Manager) GetDaily(ctx context.Context, code string, days int) (domain.KLineSeries, error) {
	for _, a := range m.adapters {
		if !a.IsAvailable() {
			continue
		}
		series, class, err := a.GetDaily(ctx, code, days)
		if err == nil {
			return series, nil
		}
		m.log.Warn().Str("adapter", a.Name()).Str("code", code).Err(err).Str("class", string(class)).Msg("daily fetch failed")
		if !class.Switchable() {
			return domain.KLineSeries{}, errs.Wrap(errs.KindInternal, "adapter "+a.Name()+" terminal failure", err)
		}
	}
	return domain.KLineSeries{}, errs.New(errs.KindInternal, "all sources failed for daily history of "+code)
}

// GetRealtime dispatches to each adapter's realtime quote path, honoring
// the realtime breaker. Exhaustion returns (nil, nil): absence, not
// error.
func (m *Manager) GetRealtime(ctx context.Context, code string) (*domain.UnifiedQuote, error) {
	for _, a := range m.adapters {
		if !a.IsAvailable() || !m.realtimeBreaker.IsAvailable(a.Name()) {
			continue
		}
		quote, class, err := a.GetRealtime(ctx, code)
		if err == nil {
			m.realtimeBreaker.RecordSuccess(a.Name())
			return quote, nil
		}
		m.log.Warn().Str("adapter", a.Name()).Str("code", code).Err(err).Str("class", string(class)).Msg("realtime fetch failed")
		if class == errs.ClassRateLimited || class == errs.ClassTransient {
			m.realtimeBreaker.RecordFailure(a.Name(), err.Error())
		}
		if !class.Switchable() {
			return nil, nil
		}
	}
	return nil, nil
}

// GetChip dispatches to each adapter's chip-distribution path, honoring
// the (more conservative) chip breaker. Non-A-share symbols and
// exhaustion both return (nil, nil): absence is the canonical response,
// per spec.md §9's resolved open question.
func (m *Manager) GetChip(ctx context.Context, code string) (*domain.ChipDistribution, error) {
	if domain.ClassifyMarket(code) != domain.MarketAShare {
		return nil, nil
	}
	for _, a := range m.adapters {
		if !a.IsAvailable() || !m.chipBreaker.IsAvailable(a.Name()) {
			continue
		}
		chip, class, err := a.GetChip(ctx, code)
		if err == nil {
			m.chipBreaker.RecordSuccess(a.Name())
			return chip, nil
		}
		m.log.Warn().Str("adapter", a.Name()).Str("code", code).Err(err).Str("class", string(class)).Msg("chip fetch failed")
		if class == errs.ClassRateLimited || class == errs.ClassTransient {
			m.chipBreaker.RecordFailure(a.Name(), err.Error())
		}
		if !class.Switchable() {
			return nil, nil
		}
	}
	return nil, nil
}

// defaultHTTPTimeout is the ceiling spec.md §5 places on provider HTTP
// calls.
const defaultHTTPTimeout = 30 * time.Second

// Package breaker implements a named-resource circuit breaker: CLOSED
// (normal) / OPEN (cool-down) / HALF_OPEN (single probe allowed).
package breaker

import (
	"sync"
	"time"
)

// State is one of the three breaker states for a single named resource.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config holds the tunables for one Breaker instance.
type Config struct {
	FailureThreshold int           // failures before CLOSED -> OPEN
	Cooldown         time.Duration // time OPEN must elapse before a probe is allowed
	HalfOpenMaxCalls int           // probes allowed per HALF_OPEN window
}

// DefaultConfig matches spec.md's default breaker (realtime-quote sources).
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, Cooldown: 300 * time.Second, HalfOpenMaxCalls: 1}
}

// ConservativeConfig matches spec.md's chip-source breaker: fewer
// tolerated failures, longer cooldown.
func ConservativeConfig() Config {
	return Config{FailureThreshold: 2, Cooldown: 600 * time.Second, HalfOpenMaxCalls: 1}
}

type resourceState struct {
	state           State
	failures        int
	lastFailureTime time.Time
	halfOpenCalls   int
}

// Breaker tracks independent CLOSED/OPEN/HALF_OPEN state per named
// resource, so one process can run several breakers (one per adapter,
// one per logical endpoint) sharing the same configuration.
type Breaker struct {
	cfg       Config
	mu        sync.Mutex
	resources map[string]*resourceState
	now       func() time.Time
}

// New creates a Breaker with the given config.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:       cfg,
		resources: make(map[string]*resourceState),
		now:       time.Now,
	}
}

func (b *Breaker) get(name string) *resourceState {
	rs, ok := b.resources[name]
	if !ok {
		rs = &resourceState{state: Closed}
		b.resources[name] = rs
	}
	return rs
}

// IsAvailable reports whether a request should be attempted against the
// named resource right now. OPEN resources transition to HALF_OPEN once
// the cooldown has elapsed, granting the caller a probe.
func (b *Breaker) IsAvailable(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs := b.get(name)
	switch rs.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(rs.lastFailureTime) >= b.cfg.Cooldown {
			rs.state = HalfOpen
			rs.halfOpenCalls = 1
			return true
		}
		return false
	case HalfOpen:
		if rs.halfOpenCalls < b.cfg.HalfOpenMaxCalls {
			rs.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful call against the named resource.
// In CLOSED state it decrements the failure counter toward zero; in
// HALF_OPEN it fully closes the breaker.
func (b *Breaker) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs := b.get(name)
	switch rs.state {
	case Closed:
		if rs.failures > 0 {
			rs.failures--
		}
	case HalfOpen:
		rs.state = Closed
		rs.failures = 0
		rs.halfOpenCalls = 0
	}
}

// RecordFailure reports a failed call against the named resource. The
// reason is informational only; classification of whether a failure
// counts at all happens upstream of the breaker (see the provider
// cascade's error classification).
func (b *Breaker) RecordFailure(name string, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs := b.get(name)
	switch rs.state {
	case Closed:
		rs.failures++
		if rs.failures >= b.cfg.FailureThreshold {
			rs.state = Open
			rs.lastFailureTime = b.now()
		}
	case HalfOpen:
		rs.state = Open
		rs.lastFailureTime = b.now()
		rs.halfOpenCalls = 0
	}
	_ = reason
}

// Status is a point-in-time snapshot of one resource's breaker state.
type Status struct {
	Name            string
	State           State
	Failures        int
	LastFailureTime time.Time
}

// GetStatus returns a snapshot of every resource this breaker has seen.
func (b *Breaker) GetStatus() []Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Status, 0, len(b.resources))
	for name, rs := range b.resources {
		out = append(out, Status{
			Name:            name,
			State:           rs.state,
			Failures:        rs.failures,
			LastFailureTime: rs.lastFailureTime,
		})
	}
	return out
}

// Reset clears breaker state. With an empty name it resets every
// resource; otherwise only the named one.
func (b *Breaker) Reset(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		b.resources = make(map[string]*resourceState)
		return
	}
	delete(b.resources, name)
}

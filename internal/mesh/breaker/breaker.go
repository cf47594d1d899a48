// Package breaker implements the per-upstream circuit breaker from
// design note §4.1: a Closed/Open/HalfOpen state machine guarding a single
// upstream endpoint.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the thresholds from design note §6's configuration list.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// DefaultConfig returns the defaults named in design note §4.1.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         60 * time.Second,
	}
}

// Breaker is a single mutex-guarded state tuple, matching the Rust
// original's single-writer intent (one lock for the whole tuple, not a
// field-by-field CAS discipline).
type Breaker struct {
	mu sync.Mutex

	name   string
	cfg    Config
	state  State
	fails  int
	succ   int
	lastFail time.Time

	log *zap.Logger
}

// New creates a circuit breaker for the named upstream.
func New(name string, cfg Config, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: Closed,
		log:   log,
	}
}

// AdmitRequest reports whether a request may proceed, performing the
// Open -> HalfOpen probe-admission transition when the cooldown has
// elapsed.
func (b *Breaker) AdmitRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Since(b.lastFail) >= b.cfg.Cooldown {
			b.state = HalfOpen
			b.succ = 0
			b.log.Info("circuit breaker transitioned to half-open",
				zap.String("upstream", b.name))
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.fails = 0
	case HalfOpen:
		b.succ++
		if b.succ >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.fails = 0
			b.succ = 0
			b.log.Info("circuit breaker transitioned to closed",
				zap.String("upstream", b.name))
		}
	case Open:
		// Should not happen in practice; AdmitRequest gates calls.
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFail = time.Now()

	switch b.state {
	case Closed:
		b.fails++
		if b.fails >= b.cfg.FailureThreshold {
			b.state = Open
			b.log.Warn("circuit breaker transitioned to open",
				zap.String("upstream", b.name), zap.Int("failures", b.fails))
		}
	case HalfOpen:
		b.state = Open
		b.succ = 0
		b.log.Warn("circuit breaker reopened after half-open failure",
			zap.String("upstream", b.name))
	case Open:
		// Already open; timestamp already refreshed above.
	}
}

// CurrentState returns the breaker's current state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

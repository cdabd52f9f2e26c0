// Package breaker implements a three-state circuit breaker guarding calls
// to the graph store.
package breaker

import (
	"sync"
	"time"

	"github.com/citegraph/layout-engine/pkg/errors"
	"github.com/citegraph/layout-engine/pkg/utils"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns the human-readable state name.
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

// Breaker is a CLOSED/OPEN/HALF_OPEN circuit breaker. It is safe for
// concurrent use but, per the engine's shared-nothing concurrency model,
// each worker should own its own instance — breaker state is never shared
// across workers.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration
	clock            utils.Clock

	state               State
	consecutiveFailures int
	lastFailure         time.Time

	onStateChange func(State)
}

// New creates a Breaker with the given threshold and recovery timeout.
func New(failureThreshold int, recoveryTimeout time.Duration, clock utils.Clock) *Breaker {
	if clock == nil {
		clock = utils.NewRealClock()
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		clock:            clock,
		state:            Closed,
	}
}

// OnStateChange registers a callback invoked whenever the breaker
// transitions state. Used to drive the circuit-breaker-open gauge.
func (b *Breaker) OnStateChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// State returns the breaker's current state, first promoting OPEN to
// HALF_OPEN if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	return b.state
}

// Allow reports whether a call may proceed. OPEN rejects immediately;
// CLOSED and HALF_OPEN allow. HALF_OPEN does not limit how many calls are
// admitted concurrently: every caller is let through until the first
// recorded outcome closes the breaker (success) or reopens it (failure).
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	return b.state != Open
}

// maybeRecover transitions OPEN to HALF_OPEN once the recovery timeout has
// elapsed. Caller must hold b.mu.
func (b *Breaker) maybeRecover() {
	if b.state != Open {
		return
	}
	if b.lastFailure.IsZero() || b.clock.Since(b.lastFailure) >= b.recoveryTimeout {
		b.setState(HalfOpen)
	}
}

// RecordSuccess reports a successful call, closing the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	if b.state != Closed {
		b.setState(Closed)
	}
}

// RecordFailure reports a failed call, possibly opening the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	b.lastFailure = b.clock.Now()

	if b.state == HalfOpen {
		b.setState(Open)
		return
	}
	if b.consecutiveFailures >= b.failureThreshold {
		b.setState(Open)
	}
}

// setState transitions the breaker and fires onStateChange. Caller must
// hold b.mu.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onStateChange != nil {
		b.onStateChange(s)
	}
}

// Run executes fn as a scoped resource: entering checks Allow, exiting
// records success or failure based on fn's outcome. Only errors classified
// as database/transient-store errors trip the breaker; any other error
// (e.g. context cancellation) propagates without affecting breaker state.
func (b *Breaker) Run(fn func() error) error {
	if !b.Allow() {
		return errors.ErrCircuitOpen
	}

	err := fn()
	switch {
	case err == nil:
		b.RecordSuccess()
		return nil
	case errors.IsCancelledError(err):
		return err
	case errors.IsDatabaseError(err) || errors.IsTransientStoreError(err):
		b.RecordFailure()
		return err
	default:
		return err
	}
}

// Reset forces the breaker back to CLOSED.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.lastFailure = time.Time{}
	b.setState(Closed)
}

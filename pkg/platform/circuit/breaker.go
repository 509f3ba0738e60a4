// Package circuit provides a simple circuit breaker for outbound calls.
package circuit

import "sync"

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is healthy and calls flow normally.
	StateClosed State = iota
	// StateOpen means the circuit has tripped and calls fail fast.
	StateOpen
)

// Breaker tracks consecutive failures of an outbound dependency.
// It implements a two-state circuit breaker: after FailureThreshold
// consecutive failures the circuit opens, after SuccessThreshold consecutive
// successes while open it closes again. Probe decides whether an individual
// call may go through while the circuit is open.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	probeCount       int
	failureThreshold int
	successThreshold int
	probeInterval    int
}

// Option configures a Breaker instance.
type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures to open the
// circuit. Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the number of consecutive successes to close the
// circuit. Default is 2.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithProbeInterval lets every n-th call through while the circuit is open.
// Default is 10.
func WithProbeInterval(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.probeInterval = n
		}
	}
}

// New creates a circuit breaker.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		probeInterval:    10,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. While the circuit is open only
// every probeInterval-th call goes through, so a recovered dependency is
// noticed without hammering a dead one.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return true
	}
	b.probeCount++
	return b.probeCount%b.probeInterval == 0
}

// RecordFailure notes a failed call. It returns true when this failure
// tripped the circuit open.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.successCount = 0

	if b.state == StateOpen {
		return false
	}
	if b.failureCount >= b.failureThreshold {
		b.state = StateOpen
		return true
	}
	return false
}

// RecordSuccess notes a successful call. It returns true when this success
// closed the circuit again.
func (b *Breaker) RecordSuccess() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.probeCount = 0
			return true
		}
		return false
	}

	b.failureCount = 0
	return false
}

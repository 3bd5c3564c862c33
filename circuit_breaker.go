package dtlspsk

import (
	"fmt"
	"sync"
	"time"
)

// circuitState is the current state of a circuitBreaker.
type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half-open"
)

// circuitBreaker guards the endpoint's hostname resolver, the one
// externally-caused, transient failure mode an endpoint owns. After
// maxFailures consecutive resolver failures it opens and fails calls
// immediately without touching the network again until resetTimeout has
// elapsed, at which point it allows one half-open probe.
//
// This is scoped strictly to resolution; it never wraps handshake sends,
// since record-layer retransmission stays out of scope regardless of
// transport failures.
type circuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
	state        circuitState
	mu           sync.Mutex
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        circuitClosed,
	}
}

// execute runs fn if the breaker allows it, recording the outcome.
func (cb *circuitBreaker) execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *circuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = circuitHalfOpen
			Debug("resolver circuit breaker transitioning to half-open")
			return nil
		}
		return fmt.Errorf("%w: resolver circuit open (last failure %v ago)", ErrResolveFailed, time.Since(cb.lastFailure).Round(time.Second))
	default:
		return nil
	}
}

func (cb *circuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		switch cb.state {
		case circuitClosed:
			if cb.maxFailures > 0 && cb.failures >= cb.maxFailures {
				cb.state = circuitOpen
				Debug("resolver circuit breaker opened after %d failures", cb.failures)
			}
		case circuitHalfOpen:
			cb.state = circuitOpen
			Debug("resolver circuit breaker re-opened after half-open probe failure")
		}
		return
	}

	switch cb.state {
	case circuitHalfOpen:
		cb.state = circuitClosed
		cb.failures = 0
		Debug("resolver circuit breaker closed after successful probe")
	case circuitClosed:
		cb.failures = 0
	}
}

func (cb *circuitBreaker) State() circuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

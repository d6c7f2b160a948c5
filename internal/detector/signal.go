package detector

import "time"

// Signal is a single-slot, edge-triggered handoff from the detector to the
// actuation loop. Set while nobody waits is kept until the next Wait or Reset
// A successful Wait consumes the pending edge
//
// Signal supports exactly one waiter
type Signal struct {
	ch chan struct{}
}

// NewSignal creates an unset signal
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Set marks the signal pending. Setting an already pending signal is a no-op
func (s *Signal) Set() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Reset clears a pending edge
func (s *Signal) Reset() {
	select {
	case <-s.ch:
	default:
	}
}

// Wait blocks until the signal is set or timeout elapses, and reports whether
// an edge was consumed. A non-positive timeout only polls
func (s *Signal) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-s.ch:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ch:
		return true
	case <-timer.C:
		return false
	}
}

// Pending reports whether an edge is waiting, without consuming it
func (s *Signal) Pending() bool {
	return len(s.ch) > 0
}

// Package backend holds the balancer's view of a single worker: its
// network identity and the mutable health/latency state the balancer
// updates on every forward and probe.
package backend

import (
	"fmt"
	"sync"
	"time"
)

// maxLatencySamples bounds the recent-latency ring per spec invariant 1.
const maxLatencySamples = 10

// errorThreshold is the consecutive-error count that demotes a backend
// out of rotation.
const errorThreshold = 3

// Backend identifies one worker process by network address.
type Backend struct {
	Host string
	Port int
}

// URL returns the base HTTP URL for this backend.
func (b Backend) URL() string {
	return fmt.Sprintf("http://%s:%d", b.Host, b.Port)
}

func (b Backend) String() string { return b.URL() }

// State is the mutable health record for a Backend. Every field is
// guarded by mu; callers must use the accessor methods rather than
// touching fields directly, since the balancer mutates State
// concurrently from the forwarding path and the health-probe
// fan-out.
type State struct {
	mu sync.Mutex

	healthy         bool
	errorCount      uint32
	lastCheckEpochS float64
	recentLatencies []time.Duration
}

// NewState returns a State in the initial healthy condition.
func NewState() *State {
	return &State{healthy: true}
}

// Healthy reports whether the backend is currently eligible for
// selection.
func (s *State) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// ErrorCount returns the current consecutive-error streak.
func (s *State) ErrorCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount
}

// LastCheckEpochS returns the unix-seconds timestamp of the last probe
// or forward issued against this backend.
func (s *State) LastCheckEpochS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCheckEpochS
}

// Touch records that a request was just issued against this backend,
// advancing last-check time. last_check_epoch_s is monotonically
// non-decreasing per backend, so a stale call (clock skew or
// concurrent probes racing) is a no-op.
func (s *State) Touch(epochS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epochS > s.lastCheckEpochS {
		s.lastCheckEpochS = epochS
	}
}

// MarkError records a transport failure or non-200 response. The
// backend flips unhealthy the moment the streak reaches errorThreshold.
func (s *State) MarkError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	if s.errorCount >= errorThreshold {
		s.healthy = false
	}
}

// MarkSuccess records an HTTP-200 response or a successful probe.
// Any success resets the error streak and restores health immediately.
func (s *State) MarkSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount = 0
	s.healthy = true
}

// AddResponseTime appends a latency sample, dropping the oldest once
// the ring exceeds maxLatencySamples entries.
func (s *State) AddResponseTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentLatencies = append(s.recentLatencies, d)
	if len(s.recentLatencies) > maxLatencySamples {
		s.recentLatencies = s.recentLatencies[len(s.recentLatencies)-maxLatencySamples:]
	}
}

// AvgResponseTime returns the arithmetic mean of recorded samples, or
// zero if none have been recorded yet.
func (s *State) AvgResponseTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.recentLatencies {
		total += d
	}
	return total / time.Duration(len(s.recentLatencies))
}

// SampleCount returns the number of latency samples currently held,
// capped at maxLatencySamples.
func (s *State) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recentLatencies)
}

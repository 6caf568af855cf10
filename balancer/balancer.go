// Package balancer implements the health-aware round-robin front end:
// backend selection, probe-before-forward health checking, transparent
// request forwarding with single-shot failover, and connection pooling.
package balancer

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/user0131/llamapool/backend"
)

// TransportError reports a failed forward attempt (connection refused,
// DNS failure, timeout) as distinct from a non-200 HTTP response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// NoHealthyBackendError reports that selection found no healthy
// backend, surfaced as HTTP 503.
type NoHealthyBackendError struct{}

func (e *NoHealthyBackendError) Error() string { return "no healthy backend available" }

// entry pairs a Backend's identity with its mutable State.
type entry struct {
	backend backend.Backend
	state   *backend.State
}

// Balancer holds the registered backend list (fixed at construction —
// registration order never changes) and the rotating selection
// cursor. All mutation of shared state goes through sync/atomic or
// backend.State's own mutex, so Balancer itself never blocks a
// request on another request's I/O.
type Balancer struct {
	logger zerolog.Logger
	client *http.Client

	entries []entry
	cursor  uint64 // atomic; incremented on every selection

	staleAfter time.Duration
}

// New builds a Balancer over the given backends.
func New(logger zerolog.Logger, backends []backend.Backend, forwardDeadline time.Duration, staleAfter time.Duration) *Balancer {
	entries := make([]entry, len(backends))
	for i, b := range backends {
		entries[i] = entry{backend: b, state: backend.NewState()}
	}
	return &Balancer{
		logger:     logger,
		client:     newPooledClient(defaultPoolConfig(forwardDeadline)),
		entries:    entries,
		staleAfter: staleAfter,
	}
}

// Close releases pooled connections.
func (b *Balancer) Close() {
	if t, ok := b.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// healthyEntries returns the subset of entries currently marked
// healthy, in registration order.
func (b *Balancer) healthyEntries() []entry {
	var healthy []entry
	for _, e := range b.entries {
		if e.state.Healthy() {
			healthy = append(healthy, e)
		}
	}
	return healthy
}

// selectBackend implements get_next_backend: filter to healthy
// entries, pick healthy[cursor mod len(healthy)], advance the cursor.
// The cursor is process-global and is never reset when the healthy
// subset changes, so a backend recovering mid-rotation simply
// reappears at whatever phase the cursor lands on next.
func (b *Balancer) selectBackend() (entry, bool) {
	healthy := b.healthyEntries()
	if len(healthy) == 0 {
		return entry{}, false
	}
	idx := atomic.AddUint64(&b.cursor, 1) - 1
	return healthy[idx%uint64(len(healthy))], true
}

// selectBackendExcluding is used by the forwarding path's single-shot
// failover: picks a healthy backend different from exclude, if one
// exists.
func (b *Balancer) selectBackendExcluding(exclude backend.Backend) (entry, bool) {
	healthy := b.healthyEntries()
	var candidates []entry
	for _, e := range healthy {
		if e.backend != exclude {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return entry{}, false
	}
	idx := atomic.AddUint64(&b.cursor, 1) - 1
	return candidates[idx%uint64(len(candidates))], true
}

// Status is the GET /status response shape.
type Status struct {
	TotalBackends   int              `json:"total_backends"`
	HealthyBackends int              `json:"healthy_backends"`
	Backends        []BackendStatus  `json:"backends"`
}

// BackendStatus is one entry of Status.Backends.
type BackendStatus struct {
	URL             string  `json:"url"`
	Healthy         bool    `json:"healthy"`
	ErrorCount      uint32  `json:"error_count"`
	AvgResponseTime float64 `json:"avg_response_time"`
	LastCheck       float64 `json:"last_check"`
}

// StatusSnapshot builds the current Status view for GET /status.
func (b *Balancer) StatusSnapshot() Status {
	s := Status{TotalBackends: len(b.entries)}
	for _, e := range b.entries {
		healthy := e.state.Healthy()
		if healthy {
			s.HealthyBackends++
		}
		avg := e.state.AvgResponseTime().Seconds()
		s.Backends = append(s.Backends, BackendStatus{
			URL:             e.backend.URL(),
			Healthy:         healthy,
			ErrorCount:      e.state.ErrorCount(),
			AvgResponseTime: roundTo3(avg),
			LastCheck:       e.state.LastCheckEpochS(),
		})
	}
	return s
}

func roundTo3(f float64) float64 {
	return float64(int64(f*1000+0.5)) / 1000
}

// probeOne issues GET backend.url/ and applies the same marking rules
// as a forward: 200 → success, anything else → error. Isolated from
// other probes — its own error never propagates.
func (b *Balancer) probeOne(ctx context.Context, e entry) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.backend.URL()+"/", nil)
	if err != nil {
		e.state.MarkError()
		return
	}
	resp, err := b.client.Do(req)
	now := float64(time.Now().Unix())
	e.state.Touch(now)
	if err != nil {
		e.state.MarkError()
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK {
		e.state.MarkSuccess()
		e.state.AddResponseTime(time.Since(start))
	} else {
		e.state.MarkError()
	}
}

// probeStale fans out GET / probes against every entry whose
// last-check timestamp is older than staleAfter, gathering with
// per-task error isolation (one probe failure never affects another).
func (b *Balancer) probeStale(ctx context.Context) {
	now := float64(time.Now().Unix())
	var wg sync.WaitGroup
	for _, e := range b.entries {
		if now-e.state.LastCheckEpochS() < b.staleAfter.Seconds() {
			continue
		}
		e := e
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.probeOne(ctx, e)
		}()
	}
	wg.Wait()
}

package balancer

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/user0131/llamapool/backend"
)

func backendFromServer(t *testing.T, srv *httptest.Server) backend.Backend {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing test server port: %v", err)
	}
	return backend.Backend{Host: u.Hostname(), Port: port}
}

func TestRoundRobinAcrossThreeHealthyBackends(t *testing.T) {
	var servers []*httptest.Server
	var backends []backend.Backend
	for i := 0; i < 3; i++ {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"object":"list","data":[]}`))
		}))
		defer srv.Close()
		servers = append(servers, srv)
		backends = append(backends, backendFromServer(t, srv))
	}

	b := New(zerolog.Nop(), backends, 5*time.Second, 30*time.Second)
	defer b.Close()

	var selectionOrder []backend.Backend
	for i := 0; i < 6; i++ {
		e, ok := b.selectBackend()
		if !ok {
			t.Fatal("expected a healthy backend to be selected")
		}
		selectionOrder = append(selectionOrder, e.backend)
	}

	for i := 0; i < 3; i++ {
		if selectionOrder[i] != selectionOrder[i+3] {
			t.Fatalf("expected cyclic selection, position %d (%v) != position %d (%v)", i, selectionOrder[i], i+3, selectionOrder[i+3])
		}
	}
	seen := map[backend.Backend]bool{}
	for _, sel := range selectionOrder[:3] {
		seen[sel] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 backends visited in one cycle, got %d distinct", len(seen))
	}
}

func TestFailoverOnTransportFault(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer up.Close()

	down := backend.Backend{Host: "127.0.0.1", Port: 1} // nothing listens here

	backends := []backend.Backend{down, backendFromServer(t, up)}
	b := New(zerolog.Nop(), backends, 2*time.Second, 30*time.Second)
	defer b.Close()

	// A fresh cursor selects the first registered backend: the down one.
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	resp, err := b.Forward(req)
	if err != nil {
		t.Fatalf("expected failover to succeed, got error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after failover, got %d", resp.StatusCode)
	}

	if b.entries[0].state.ErrorCount() == 0 {
		t.Fatal("expected down backend to have recorded an error")
	}
}

func TestNoHealthyBackendReturnsError(t *testing.T) {
	backends := []backend.Backend{{Host: "127.0.0.1", Port: 1}, {Host: "127.0.0.1", Port: 2}}
	b := New(zerolog.Nop(), backends, time.Second, 30*time.Second)
	defer b.Close()
	for _, e := range b.entries {
		e.state.MarkError()
		e.state.MarkError()
		e.state.MarkError()
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	_, err := b.Forward(req)
	if _, ok := err.(*NoHealthyBackendError); !ok {
		t.Fatalf("expected NoHealthyBackendError, got %T (%v)", err, err)
	}
}

func TestStatusSnapshotRoundsAvgResponseTime(t *testing.T) {
	backends := []backend.Backend{{Host: "127.0.0.1", Port: 9999}}
	b := New(zerolog.Nop(), backends, time.Second, 30*time.Second)
	defer b.Close()

	b.entries[0].state.AddResponseTime(123456 * time.Microsecond)
	snap := b.StatusSnapshot()
	if len(snap.Backends) != 1 {
		t.Fatalf("expected 1 backend in snapshot, got %d", len(snap.Backends))
	}
	if snap.TotalBackends != 1 || snap.HealthyBackends != 1 {
		t.Fatalf("unexpected snapshot counts: %+v", snap)
	}
	if got := snap.Backends[0].AvgResponseTime; got != 0.123 {
		t.Fatalf("expected avg_response_time rounded to 0.123, got %v", got)
	}
}

func TestHealthRecoveryAfterProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := New(zerolog.Nop(), []backend.Backend{backendFromServer(t, srv)}, time.Second, 0)
	defer b.Close()

	b.entries[0].state.MarkError()
	b.entries[0].state.MarkError()
	b.entries[0].state.MarkError()
	if b.entries[0].state.Healthy() {
		t.Fatal("expected unhealthy before probe")
	}

	b.probeStale(req(t).Context())

	if !b.entries[0].state.Healthy() {
		t.Fatal("expected healthy after successful probe")
	}
}

func req(t *testing.T) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, "/", nil)
}

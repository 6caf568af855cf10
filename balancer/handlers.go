package balancer

import (
	"encoding/json"
	"io"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// handleRoot serves GET / — liveness, plus an embedded status field
// and a stale-probe pass per spec.md §4.C6.
func (b *Balancer) handleRoot(w http.ResponseWriter, r *http.Request) {
	b.probeStale(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "llama-pool balancer is running",
		"status":  b.StatusSnapshot(),
	})
}

// handleV1Info serves GET /v1.
func (b *Balancer) handleV1Info(w http.ResponseWriter, r *http.Request) {
	b.probeStale(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object":  "api",
		"version": "v1",
		"message": "llama-pool balancer OpenAI-compatible API",
		"status":  b.StatusSnapshot(),
	})
}

// handleStatus serves GET /status.
func (b *Balancer) handleStatus(w http.ResponseWriter, r *http.Request) {
	b.probeStale(r.Context())
	writeJSON(w, http.StatusOK, b.StatusSnapshot())
}

// handleForward relays GET /v1/models, POST /v1/chat/completions, and
// POST /v1/beta/chat/completions/parse transparently — the balancer
// never inspects or rewrites JSON bodies.
func (b *Balancer) handleForward(w http.ResponseWriter, r *http.Request) {
	resp, err := b.Forward(r)
	if err != nil {
		switch err.(type) {
		case *NoHealthyBackendError:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "利用可能なバックエンドサーバーがありません"})
		default:
			writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "バックエンドへの接続に失敗しました"})
		}
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

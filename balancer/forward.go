package balancer

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// Forward relays one inbound request to a selected healthy backend,
// applying a single-shot failover to a different backend on transport
// error. Returns the upstream response (caller is responsible for
// copying it to the client and closing the body) or an error: a
// *NoHealthyBackendError when selection finds nothing, or a
// *TransportError when the original attempt fails and either no other
// healthy backend exists or the failover attempt fails too.
func (b *Balancer) Forward(r *http.Request) (*http.Response, error) {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	first, ok := b.selectBackend()
	if !ok {
		return nil, &NoHealthyBackendError{}
	}

	resp, err := b.attempt(r, first, bodyBytes)
	if err == nil {
		return resp, nil
	}

	second, ok := b.selectBackendExcluding(first.backend)
	if !ok {
		return nil, &TransportError{Err: err}
	}

	resp, err = b.attempt(r, second, bodyBytes)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

// attempt issues one forward to e, marking success/error per spec.md
// §4.C6's rules: HTTP 200 is success, any other status is an error
// (but still a returned response, not a transport failure), and a
// transport-level failure is reported up for the caller's failover
// decision.
func (b *Balancer) attempt(r *http.Request, e entry, body []byte) (*http.Response, error) {
	url := e.backend.URL() + r.URL.Path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()

	start := time.Now()
	resp, err := b.client.Do(req)
	now := float64(time.Now().Unix())
	e.state.Touch(now)

	if err != nil {
		e.state.MarkError()
		return nil, err
	}

	if resp.StatusCode == http.StatusOK {
		e.state.MarkSuccess()
		e.state.AddResponseTime(time.Since(start))
	} else {
		e.state.MarkError()
	}
	return resp, nil
}

package balancer

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/user0131/llamapool/middleware"
)

// NewRouter builds the balancer's chi router: request ID and panic
// recovery, permissive CORS, a fixed forwarding deadline, then the
// routes themselves.
func NewRouter(b *Balancer, logger zerolog.Logger, forwardDeadline *middleware.Timeout) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/", b.handleRoot)
	r.Get("/v1", b.handleV1Info)
	r.Get("/status", b.handleStatus)

	r.Group(func(fr chi.Router) {
		fr.Use(forwardDeadline.Handler)
		fr.Get("/v1/models", b.handleForward)
		fr.Post("/v1/chat/completions", b.handleForward)
		fr.Post("/v1/beta/chat/completions/parse", b.handleForward)
	})

	return r
}

package worker

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/user0131/llamapool/middleware"
)

// NewRouter builds the worker's chi router. Middleware order mirrors
// the teacher's own chain: request ID and panic recovery first, CORS
// next, request logging last before the handlers.
func NewRouter(w *Worker, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)
	r.Use(requestLogger(logger))

	r.Get("/", w.handleRoot)
	r.Get("/v1", w.handleV1Info)
	r.Get("/v1/models", w.handleModels)
	r.Post("/v1/chat/completions", w.handleChatCompletions)
	r.Post("/v1/beta/chat/completions/parse", w.handleStructuredParse)

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
			next.ServeHTTP(rw, r)
		})
	}
}

package http

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"popsies-quiz-service/internal/app"
)

// NewRouter wires the REST endpoints, the websocket endpoint and the health check.
func NewRouter(service *app.SessionService, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(correlationID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", NewWSHandler(service, logger).ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(logger))
		NewSessionHandler(service, logger).Routes(r)
	})
	return r
}

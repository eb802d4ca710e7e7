package router

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"gigachat-relay/internal/handlers"
	"gigachat-relay/internal/middleware"
)

func New(
	basicAuth *middleware.BasicAuth,
	relayHandler *handlers.RelayHandler,
	allowedOrigins []string,
	staticDir string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(allowedOrigins))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// ──── Relay Routes (Basic auth) ────
	r.Group(func(r chi.Router) {
		r.Use(basicAuth.Middleware)
		r.Post("/predict", relayHandler.Predict)
		r.Post("/auth", relayHandler.Auth)
	})

	// ──── Static Files ────
	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		}
	}

	return r
}

// web.go
package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"rolewarden/common"
	"rolewarden/handlers"
	"rolewarden/middleware"
)

type Health struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
}

func makeRouter() http.Handler {
	r := chi.NewRouter()

	// Credentialed CORS wants explicit origins, a wildcard would break
	// cookie auth. The localhost entries cover the Vite dev server.
	origins := []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
	}
	if ui := strings.TrimSpace(common.Env("ROLEWARDEN_UI_ORIGIN", "")); ui != "" {
		origins = append([]string{ui}, origins...)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", healthz)

		// everything except the health and session probes sits behind auth
		api.Group(func(priv chi.Router) {
			priv.Use(middleware.RequireAuth)
			handlers.SetupAllRoutes(priv)
		})
	})

	// unprefixed path for probes that don't know the API root
	r.Get("/healthz", healthz)

	r.Get("/login", LoginHandler)
	r.Get("/auth/login", LoginHandler) // alias
	r.Get("/auth/callback", CallbackHandler)
	r.Post("/logout", LogoutHandler)
	r.Post("/auth/logout", LogoutHandler) // alias
	r.Get("/api/session", SessionHandler)

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, Health{Status: "ok", StartedAt: startedAt})
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}

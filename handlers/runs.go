// handlers/runs.go - Reconciliation audit trail and aggregate stats
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rolewarden/database"
)

// SetupRunRoutes configures run history and stats endpoints.
func SetupRunRoutes(router chi.Router) {
	// Run history, newest first
	router.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		host := strings.TrimSpace(r.URL.Query().Get("host"))
		role := strings.TrimSpace(r.URL.Query().Get("role"))
		limit := clamp(parseIntDefault(r.URL.Query().Get("limit"), 50), 1, 500)
		offset := max(parseIntDefault(r.URL.Query().Get("offset"), 0), 0)

		runs, err := database.ListRuns(r.Context(), host, role, limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		total, err := database.GetRunCount(r.Context(), host, role)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  runs,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	})

	// One run plus its per-primitive log
	router.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		run, err := database.GetRun(r.Context(), id)
		if err != nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		logs, err := database.GetRunLogs(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run":  run,
			"logs": logs,
		})
	})

	// Aggregate dashboard counters
	router.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := database.GetStats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		activity, err := database.GetRoleActivity(r.Context(), 20)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stats":    stats,
			"activity": activity,
		})
	})
}

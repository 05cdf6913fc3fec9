// handlers/system.go - System management routes (hosts, probing, inventory, log level)
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rolewarden/common"
	"rolewarden/database"
	"rolewarden/services"
)

func clamp(val, lo, hi int) int {
	return min(max(val, lo), hi)
}

func parseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func parseDurationDefault(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false) // compose snippets with & must survive as-is
	_ = enc.Encode(data)
}

// SetupSystemRoutes configures host listing, probing, inventory and runtime
// log level endpoints.
func SetupSystemRoutes(router chi.Router) {
	// Inventory listing with owner/group/substring filters and paging.
	router.Get("/hosts", func(w http.ResponseWriter, r *http.Request) {
		items, err := database.ListHosts(r.Context())
		if err != nil {
			// the inventory snapshot keeps the listing alive through a
			// database outage, minus probe status
			common.WarnLog("hosts: db listing unavailable, serving inventory snapshot: %v", err)
			items = services.FallbackHostRows()
		}

		owner := strings.TrimSpace(r.URL.Query().Get("owner"))
		group := strings.TrimSpace(r.URL.Query().Get("group"))
		q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
		limit := clamp(parseIntDefault(r.URL.Query().Get("limit"), 200), 1, 1000)
		offset := max(parseIntDefault(r.URL.Query().Get("offset"), 0), 0)

		filtered := make([]database.HostRow, 0, len(items))
		for _, h := range items {
			if owner != "" && !strings.EqualFold(h.Owner, owner) {
				continue
			}
			if group != "" && !hasGroup(h.Groups, group) {
				continue
			}
			if q != "" && !strings.Contains(strings.ToLower(h.Name), q) &&
				!strings.Contains(strings.ToLower(h.Addr), q) {
				continue
			}
			filtered = append(filtered, h)
		}

		lo := min(offset, len(filtered))
		hi := min(lo+limit, len(filtered))

		writeJSON(w, http.StatusOK, map[string]any{
			"items":  filtered[lo:hi],
			"total":  len(filtered),
			"limit":  limit,
			"offset": offset,
		})
	})

	router.Get("/hosts/{name}", func(w http.ResponseWriter, r *http.Request) {
		h, err := database.GetHostByName(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			http.Error(w, "host not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, h)
	})

	// Probe a single host's Docker endpoint
	router.Post("/probe/hosts/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		to := parseDurationDefault(r.URL.Query().Get("timeout"), 15*time.Second)
		ctx, cancel := context.WithTimeout(r.Context(), to)
		defer cancel()

		h, err := database.GetHostByName(ctx, name)
		if err != nil {
			http.Error(w, "host not found", http.StatusNotFound)
			return
		}

		status, err := services.ProbeHost(ctx, h)
		if err != nil {
			if errors.Is(err, services.ErrSkipProbe) {
				writeJSON(w, http.StatusOK, map[string]any{
					"host":   name,
					"status": "skipped",
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"host":   name,
				"status": status,
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"host":   name,
			"status": status,
		})
	})

	// Probe every host
	router.Post("/probe/global", func(w http.ResponseWriter, r *http.Request) {
		hostRows, err := database.ListHosts(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		perHostTO := parseDurationDefault(r.URL.Query().Get("timeout"), 15*time.Second)

		type result struct {
			Host    string `json:"host"`
			Status  string `json:"status,omitempty"`
			Skipped bool   `json:"skipped,omitempty"`
			Err     string `json:"error,omitempty"`
		}

		var (
			results []result
			up      int
			down    int
			skipped int
		)

		for _, h := range hostRows {
			ctx, cancel := context.WithTimeout(r.Context(), perHostTO)
			status, err := services.ProbeHost(ctx, h)
			cancel()

			if errors.Is(err, services.ErrSkipProbe) {
				results = append(results, result{Host: h.Name, Skipped: true})
				skipped++
				continue
			}
			res := result{Host: h.Name, Status: status}
			if err != nil {
				res.Err = err.Error()
				down++
			} else {
				up++
			}
			results = append(results, res)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"up":      up,
			"down":    down,
			"skipped": skipped,
			"results": results,
		})
	})

	// Reread the inventory file, optionally from a different path.
	router.Post("/inventory/reload", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Path string `json:"path"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		path := strings.TrimSpace(body.Path)
		var err error
		if path != "" {
			err = services.ReloadInventoryWithPath(path)
		} else {
			err = services.ReloadInventory()
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		count, err := database.GetHostCount(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "hosts": count})
	})

	// Runtime log level
	router.Get("/system/loglevel", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"level": common.LogLevel()})
	})

	router.Post("/system/loglevel", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Level string `json:"level"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if err := common.SetLogLevel(body.Level); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		common.InfoLog("log level set to %s", body.Level)
		writeJSON(w, http.StatusOK, map[string]string{"level": common.LogLevel()})
	})
}

func hasGroup(groups []string, want string) bool {
	for _, g := range groups {
		if strings.EqualFold(g, want) {
			return true
		}
	}
	return false
}

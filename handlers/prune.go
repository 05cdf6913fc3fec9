// handlers/prune.go - Docker resource pruning on a target host
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rolewarden/common"
	"rolewarden/database"
	"rolewarden/services"
	"rolewarden/utils"
)

// pruneCommands maps a prune scope to the command run on the target host.
var pruneCommands = map[string]string{
	"system":     "docker system prune -af",
	"images":     "docker image prune -af",
	"containers": "docker container prune -f",
	"volumes":    "docker volume prune -f",
	"networks":   "docker network prune -f",
}

// SetupPruneRoutes configures the prune endpoint.
func SetupPruneRoutes(router chi.Router) {
	router.Post("/hosts/{name}/prune", handlePrune)
}

func handlePrune(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		Scope  string `json:"scope"`
		DryRun bool   `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	scope := strings.ToLower(strings.TrimSpace(body.Scope))
	if scope == "" {
		scope = "system"
	}
	cmd, ok := pruneCommands[scope]
	if !ok {
		http.Error(w, "unsupported scope", http.StatusBadRequest)
		return
	}

	h, err := database.GetHostByName(r.Context(), name)
	if err != nil {
		http.Error(w, "host not found", http.StatusNotFound)
		return
	}

	if body.DryRun {
		common.DebugLog("prune: host=%s scope=%s dry run, nothing executed", h.Name, scope)
		writeJSON(w, http.StatusOK, map[string]any{
			"host":            h.Name,
			"scope":           scope,
			"status":          "dry_run",
			"space_reclaimed": "0B (dry run)",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), parseDurationDefault(r.URL.Query().Get("timeout"), 5*time.Minute))
	defer cancel()

	common.InfoLog("prune: host=%s scope=%s", h.Name, scope)
	res, err := utils.RunCommand(ctx, services.TargetFor(h), cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "prune failed"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"host":   h.Name,
			"scope":  scope,
			"status": "failed",
			"error":  msg,
		})
		return
	}

	reclaimed := parseReclaimed(res.Stdout + "\n" + res.Stderr)
	common.DebugLog("prune: host=%s scope=%s reclaimed=%s", h.Name, scope, reclaimed)
	writeJSON(w, http.StatusOK, map[string]any{
		"host":            h.Name,
		"scope":           scope,
		"status":          "completed",
		"space_reclaimed": reclaimed,
	})
}

// parseReclaimed extracts the reclaimed-space figure from prune output.
func parseReclaimed(output string) string {
	lines := strings.Split(output, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		// Look for patterns like "Total reclaimed space: 2.1GB"
		if strings.Contains(line, "Total reclaimed space:") || strings.Contains(line, "Total:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				return parts[len(parts)-1]
			}
		}
		// Alternative pattern "Space reclaimed: 123MB"
		if strings.Contains(line, "Space reclaimed:") {
			parts := strings.Fields(line)
			if len(parts) >= 3 {
				return parts[2]
			}
		}
	}
	// No space info found
	return "unknown"
}

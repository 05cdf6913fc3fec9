// handlers/reconcile.go - Role reconciliation endpoints (sync JSON, websocket stream, role status)
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
	"github.com/google/uuid"

	"rolewarden/common"
	"rolewarden/database"
	"rolewarden/middleware"
	"rolewarden/services"
	"rolewarden/utils"
)

// reconcileRequest is the caller-facing shape of one reconciliation. Args is
// an optional "k=v k2=v2" string; the named fields override it per key.
type reconcileRequest struct {
	Args       string         `json:"args,omitempty"`
	Role       string         `json:"role,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Images     string         `json:"images,omitempty"`
	Containers string         `json:"containers,omitempty"`
}

// reconcileArgs splits a request into the raw and structured argument maps
// the engine merges. Only fields the caller actually set go into the
// structured map, so they never shadow args pairs with empty values.
func reconcileArgs(req reconcileRequest) (map[string]string, map[string]any) {
	raw := services.ParseKV(req.Args)
	complexArgs := map[string]any{}
	if strings.TrimSpace(req.Role) != "" {
		complexArgs["role"] = req.Role
	}
	if req.Data != nil {
		complexArgs["data"] = req.Data
	}
	if strings.TrimSpace(req.Images) != "" {
		complexArgs["images"] = req.Images
	}
	if strings.TrimSpace(req.Containers) != "" {
		complexArgs["containers"] = req.Containers
	}
	return raw, complexArgs
}

// argString reads one effective argument for audit stamping, preferring the
// structured value like the engine does.
func argString(raw map[string]string, complexArgs map[string]any, key string) string {
	if v, ok := complexArgs[key].(string); ok {
		return v
	}
	return raw[key]
}

func parseCheckFlag(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("check")) {
	case "1", "t", "true", "yes", "on":
		return true
	}
	return false
}

func reconcileTimeout(r *http.Request) time.Duration {
	to := parseDurationDefault(r.URL.Query().Get("timeout"), 10*time.Minute)
	if to <= 0 {
		to = 10 * time.Minute
	}
	if to > 30*time.Minute {
		to = 30 * time.Minute
	}
	return to
}

// runLogSink persists every primitive invocation of a run.
func runLogSink(runID string) func(ctx context.Context, e services.StepEvent) {
	return func(ctx context.Context, e services.StepEvent) {
		if err := database.AppendRunLog(ctx, runID, e.Seq, e.Primitive, e.Args, e.Changed, e.Failed, e.Message); err != nil {
			common.WarnLog("reconcile: run=%s append log seq=%d failed: %v", runID, e.Seq, err)
		}
	}
}

// finishRun closes the run row on a detached context so the audit trail
// completes even when the request context already expired.
func finishRun(runID string, out services.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.FinishRun(ctx, runID, out.Changed, out.Failed, out.Msg); err != nil {
		common.WarnLog("reconcile: run=%s finish failed: %v", runID, err)
	}
}

// SetupReconcileRoutes configures reconciliation and role status endpoints.
func SetupReconcileRoutes(router chi.Router) {
	// Reconcile a role on a host, one aggregated outcome
	router.Post("/hosts/{name}/reconcile", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		check := parseCheckFlag(r)

		ctx, cancel := context.WithTimeout(r.Context(), reconcileTimeout(r))
		defer cancel()

		h, err := database.GetHostByName(ctx, name)
		if err != nil {
			http.Error(w, "host not found", http.StatusNotFound)
			return
		}

		var req reconcileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		raw, complexArgs := reconcileArgs(req)

		runID := uuid.New().String()
		requestedBy := middleware.GetUserEmail(r.Context())
		role := argString(raw, complexArgs, "role")
		common.InfoLog("reconcile: run=%s host=%s role=%s check=%v by=%s", runID, h.Name, role, check, requestedBy)

		if err := database.CreateRun(ctx, runID, h.Name, role,
			argString(raw, complexArgs, "images"), argString(raw, complexArgs, "containers"),
			check, requestedBy); err != nil {
			http.Error(w, "failed to record run", http.StatusInternalServerError)
			return
		}

		remote := utils.NewRemoteClient(services.TargetFor(h))
		defer remote.Close()
		rec := services.NewRunRecorder(remote, runLogSink(runID), nil)

		out := services.Reconcile(ctx, rec, raw, complexArgs, check)
		finishRun(runID, out)

		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":  runID,
			"changed": out.Changed,
			"failed":  out.Failed,
			"msg":     out.Msg,
		})
	})

	// Reconcile over a websocket: the first client message is the request,
	// then one "step" event per primitive and a final "result" event.
	router.Get("/hosts/{name}/reconcile/ws", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		h, err := database.GetHostByName(r.Context(), name)
		if err != nil {
			http.Error(w, "host not found", http.StatusNotFound)
			return
		}

		conn, err := utils.WSUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req reconcileRequest
		if err := conn.ReadJSON(&req); err != nil {
			_ = conn.WriteJSON(map[string]any{"type": "error", "error": "invalid request: " + err.Error()})
			return
		}

		check := parseCheckFlag(r)
		ctx, cancel := context.WithTimeout(r.Context(), reconcileTimeout(r))
		defer cancel()

		raw, complexArgs := reconcileArgs(req)
		runID := uuid.New().String()
		requestedBy := middleware.GetUserEmail(r.Context())
		role := argString(raw, complexArgs, "role")
		common.InfoLog("reconcile: run=%s host=%s role=%s check=%v by=%s (ws)", runID, h.Name, role, check, requestedBy)

		if err := database.CreateRun(ctx, runID, h.Name, role,
			argString(raw, complexArgs, "images"), argString(raw, complexArgs, "containers"),
			check, requestedBy); err != nil {
			_ = conn.WriteJSON(map[string]any{"type": "error", "error": "failed to record run"})
			return
		}

		type wsStep struct {
			Type  string `json:"type"`
			RunID string `json:"run_id"`
			services.StepEvent
		}

		remote := utils.NewRemoteClient(services.TargetFor(h))
		defer remote.Close()
		// the engine runs primitives sequentially, so writes never interleave
		rec := services.NewRunRecorder(remote, runLogSink(runID), func(e services.StepEvent) {
			_ = conn.WriteJSON(wsStep{Type: "step", RunID: runID, StepEvent: e})
		})

		out := services.Reconcile(ctx, rec, raw, complexArgs, check)
		finishRun(runID, out)

		_ = conn.WriteJSON(map[string]any{
			"type":    "result",
			"run_id":  runID,
			"changed": out.Changed,
			"failed":  out.Failed,
			"msg":     out.Msg,
		})
	})

	// Observed container state for a role's compose project
	router.Get("/hosts/{name}/roles/{role}/status", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		role := chi.URLParam(r, "role")
		if role == "" || strings.Contains(role, "..") || strings.Contains(role, "/") {
			http.Error(w, "invalid role", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), parseDurationDefault(r.URL.Query().Get("timeout"), 20*time.Second))
		defer cancel()

		h, err := database.GetHostByName(ctx, name)
		if err != nil {
			http.Error(w, "host not found", http.StatusNotFound)
			return
		}

		st, err := services.GetRoleStatus(ctx, h, role)
		if err != nil {
			if errors.Is(err, services.ErrSkipProbe) {
				writeJSON(w, http.StatusOK, map[string]any{
					"host":    h.Name,
					"role":    role,
					"skipped": true,
				})
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})
}

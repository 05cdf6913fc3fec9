// handlers/containers.go - Live container endpoints (logs, inspect, stats, lifecycle actions)
package handlers

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/go-chi/chi/v5"

	"rolewarden/database"
	"rolewarden/services"
	"rolewarden/utils"
)

// SetupContainerRoutes configures per-container operations on a host.
func SetupContainerRoutes(router chi.Router) {
	router.Route("/hosts/{name}/containers/{ctr}", func(r chi.Router) {
		r.Get("/logs", handleContainerLogs)
		r.Get("/logs/stream", handleContainerLogsStream)
		r.Get("/inspect", handleContainerInspect)
		r.Get("/stats", handleContainerStats)
		r.Post("/action", handleContainerAction)
	})
}

// hostParam resolves the {name} URL parameter against the inventory,
// answering 404 itself when the host is unknown.
func hostParam(w http.ResponseWriter, r *http.Request) (database.HostRow, bool) {
	h, err := database.GetHostByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, "host not found", http.StatusNotFound)
		return database.HostRow{}, false
	}
	return h, true
}

// handleContainerLogsStream follows container logs as Server-Sent Events,
// one event per line on the "stdout"/"stderr" channels.
func handleContainerLogsStream(w http.ResponseWriter, r *http.Request) {
	ctr := chi.URLParam(r, "ctr")
	h, ok := hostParam(w, r)
	if !ok {
		return
	}

	cli, done, err := utils.NewDockerClient(r.Context(), services.TargetFor(h))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer done()

	// TTY decides the wire format below, so inspect first.
	ins, err := cli.ContainerInspect(r.Context(), ctr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tty := ins.Config != nil && ins.Config.Tty

	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	}
	if s := strings.TrimSpace(r.URL.Query().Get("since")); s != "" {
		opts.Since = s
	}
	if t := strings.TrimSpace(r.URL.Query().Get("tail")); t != "" {
		opts.Tail = t
	}

	rc, err := cli.ContainerLogs(r.Context(), ctr, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer rc.Close()

	fl, ok := utils.WriteSSEHeader(w)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	// One stream lock covers both channels and the keepalive, so the copy
	// goroutine and the ticker below never hit the response concurrently.
	es := utils.NewSSEStream(w, fl)
	stdout := utils.NewSSELineWriter(es, "stdout")
	stderr := utils.NewSSELineWriter(es, "stderr")

	copied := make(chan struct{})
	go func() {
		defer close(copied)
		if tty {
			// a TTY container emits one raw stream, no frame headers
			sc := bufio.NewScanner(rc)
			for sc.Scan() {
				_, _ = stdout.Write(append(sc.Bytes(), '\n'))
			}
			return
		}
		// non-TTY logs are multiplexed stdout/stderr frames
		_, _ = stdcopy.StdCopy(stdout, stderr, rc)
	}()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-copied:
			return
		case <-keepalive.C:
			// SSE comment line, keeps proxies from timing the stream out
			es.Comment("keepalive")
		case <-r.Context().Done():
			return
		}
	}
}

func handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	ctr := chi.URLParam(r, "ctr")
	h, ok := hostParam(w, r)
	if !ok {
		return
	}

	cli, done, err := utils.NewDockerClient(r.Context(), services.TargetFor(h))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer done()

	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	}
	if tail := strings.TrimSpace(r.URL.Query().Get("tail")); tail != "" {
		opts.Tail = tail
	}

	rc, err := cli.ContainerLogs(r.Context(), ctr, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.Copy(w, rc)
}

func handleContainerInspect(w http.ResponseWriter, r *http.Request) {
	ctr := chi.URLParam(r, "ctr")
	h, ok := hostParam(w, r)
	if !ok {
		return
	}

	out, err := utils.InspectContainer(r.Context(), services.TargetFor(h), ctr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleContainerStats relays one raw stats sample from the daemon.
func handleContainerStats(w http.ResponseWriter, r *http.Request) {
	ctr := chi.URLParam(r, "ctr")
	h, ok := hostParam(w, r)
	if !ok {
		return
	}

	sample, err := utils.OneShotStats(r.Context(), services.TargetFor(h), ctr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, sample)
}

// handleContainerAction applies a lifecycle action: start, stop, restart,
// kill, pause, unpause or remove.
func handleContainerAction(w http.ResponseWriter, r *http.Request) {
	ctr := chi.URLParam(r, "ctr")
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	h, ok := hostParam(w, r)
	if !ok {
		return
	}

	if err := utils.ContainerAction(r.Context(), services.TargetFor(h), ctr, body.Action); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

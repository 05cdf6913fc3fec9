// utils/docker_client.go
package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/client"

	"rolewarden/common"
)

// HostRow identifies a reconciliation target: enough of an inventory record
// to dial it over SSH or resolve its Docker endpoint.
type HostRow struct {
	Name string
	Addr string
	Vars map[string]string
}

func IsUnixSock(url string) bool { return strings.HasPrefix(url, "unix://") }

// LocalHostAllowed checks if local Docker socket access is allowed for a host
func LocalHostAllowed(h HostRow) bool {
	// 1) per-host opt-in (inventory var)
	if v := strings.ToLower(strings.TrimSpace(h.Vars["docker_local"])); v == "true" || v == "1" || v == "yes" {
		return true
	}
	// 2) env mapping
	if lh := strings.TrimSpace(common.Env("ROLEWARDEN_LOCAL_HOST", "")); lh != "" && strings.EqualFold(lh, h.Name) {
		return true
	}
	// 3) obvious localhost addresses
	switch strings.ToLower(strings.TrimSpace(h.Addr)) {
	case "127.0.0.1", "::1", "localhost":
		return true
	}
	return false
}

// DockerURLFor resolves the Docker endpoint for a host. Per-host inventory
// vars win, then the local-host mapping, then DOCKER_CONNECTION_METHOD
// (ssh|tcp|local, default ssh).
func DockerURLFor(h HostRow) string {
	if v := h.Vars["docker_host"]; v != "" {
		return v
	}

	if lh := strings.TrimSpace(common.Env("ROLEWARDEN_LOCAL_HOST", "")); lh != "" && strings.EqualFold(lh, h.Name) {
		sock := common.Env("DOCKER_SOCK_PATH", "/var/run/docker.sock")
		return "unix://" + sock
	}

	kind := common.Env("DOCKER_CONNECTION_METHOD", "ssh")
	switch kind {
	case "local":
		sock := common.Env("DOCKER_SOCK_PATH", "/var/run/docker.sock")
		return "unix://" + sock
	case "tcp":
		host := h.Addr
		if host == "" {
			host = h.Name
		}
		port := common.Env("DOCKER_TCP_PORT", "2375")
		return fmt.Sprintf("tcp://%s:%s", host, port)
	default: // ssh
		return fmt.Sprintf("ssh://%s@%s", SSHUserFor(h), SSHAddrFor(h))
	}
}

// NewDockerClient builds a pinged Docker client for the host. SSH endpoints
// go through the pooled tunnel transport; unix and tcp endpoints connect
// directly. The returned cleanup must be called when done.
func NewDockerClient(ctx context.Context, h HostRow) (*client.Client, func(), error) {
	url := DockerURLFor(h)

	if strings.HasPrefix(url, "ssh://") {
		user, host, err := ParseSSHURL(url)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid SSH URL: %v", err)
		}
		keyFile := common.Env("SSH_KEY_FILE", "")
		if keyFile == "" {
			return nil, nil, fmt.Errorf("SSH_KEY_FILE not configured")
		}
		cli, cleanup, err := CreateSSHDockerClient(user, host, keyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SSH Docker client: %v", err)
		}
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := cli.Ping(pctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("SSH Docker connection test failed: %v", err)
		}
		common.DebugLog("docker: SSH client ready for %s@%s", user, host)
		return cli, cleanup, nil
	}

	cli, err := client.NewClientWithOpts(
		client.WithHost(url),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pctx); err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	return cli, func() { _ = cli.Close() }, nil
}

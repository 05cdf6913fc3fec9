// utils/docker_action.go
package utils

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"

	"rolewarden/common"
)

// ContainerAction runs one lifecycle action against a single container.
// Unknown actions are rejected, not silently ignored, because they arrive
// straight from the API.
func ContainerAction(ctx context.Context, h HostRow, ctr, action string) error {
	cli, done, err := NewDockerClient(ctx, h)
	if err != nil {
		return err
	}
	defer done()

	// stop/restart grace period in seconds
	grace := 10
	stopOpts := container.StopOptions{Timeout: &grace}

	switch action {
	case "start", "play":
		return cli.ContainerStart(ctx, ctr, container.StartOptions{})
	case "stop":
		return cli.ContainerStop(ctx, ctr, stopOpts)
	case "kill":
		return cli.ContainerKill(ctx, ctr, "KILL")
	case "restart":
		return cli.ContainerRestart(ctx, ctr, stopOpts)
	case "pause":
		return cli.ContainerPause(ctx, ctr)
	case "unpause", "resume":
		return cli.ContainerUnpause(ctx, ctr)
	case "remove":
		return cli.ContainerRemove(ctx, ctr, container.RemoveOptions{Force: true})
	default:
		return fmt.Errorf("unknown action: %s", action)
	}
}

// OneShotStats returns a single raw stats sample for the container. The
// body is the daemon's JSON, passed through untouched.
func OneShotStats(ctx context.Context, h HostRow, ctr string) (string, error) {
	cli, done, err := NewDockerClient(ctx, h)
	if err != nil {
		return "", err
	}
	defer done()

	resp, err := cli.ContainerStats(ctx, ctr, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	common.DebugLog("stats: %s len=%d", ctr, len(b))
	return string(b), nil
}

// utils/remote_compose.go
package utils

import (
	"context"
	"path/filepath"
	"strings"

	"rolewarden/common"
)

// Container states accepted by ApplyContainers.
const (
	ContainersStarted = "started"
	ContainersAbsent  = "absent"
)

// ApplyContainers converges the containers described by composeFile.
// "started" runs compose up (force recreates the stack); "absent" runs
// compose down, which always stops and removes regardless of force. The
// compose plugin must be installed on the target host.
func (c *RemoteClient) ApplyContainers(ctx context.Context, composeFile, state string, force bool) Result {
	project := ComposeProjectForRole(filepath.Base(filepath.Dir(composeFile)))

	var args []string
	switch state {
	case ContainersStarted:
		// docker compose -p <role> -f <file> up -d --remove-orphans
		args = []string{"docker", "compose", "-p", project, "-f", ShellQuote(composeFile), "up", "-d", "--remove-orphans"}
		if force {
			args = append(args, "--force-recreate")
		}
	case ContainersAbsent:
		args = []string{"docker", "compose", "-p", project, "-f", ShellQuote(composeFile), "down", "--remove-orphans"}
	default:
		return Failure("unsupported container state \"" + state + "\"")
	}

	cmd := strings.Join(args, " ")
	common.InfoLog("compose: host=%s project=%s state=%s force=%v", c.target.Name, project, state, force)

	out, err := RunCommand(ctx, c.target, cmd)
	if err != nil {
		return Failure(err.Error())
	}

	// Compose reports per-resource progress on stderr even on success.
	changed := composeChanged(out.Stdout + "\n" + out.Stderr)
	if out.ExitCode != 0 {
		common.ErrorLog("compose: host=%s project=%s failed: %s", c.target.Name, project, strings.TrimSpace(out.Stderr))
		return Normalize(Raw{Changed: changed, Failed: true, Stderr: strings.TrimSpace(out.Stderr)})
	}
	common.LogCommandOutput("compose "+project, out.Stderr)
	return Normalize(Raw{Changed: changed})
}

// composeChanged scans compose progress output for verbs that indicate the
// stack was actually modified. "Running" and plain status lines mean the
// host already matched.
func composeChanged(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[len(fields)-1] {
		case "Created", "Started", "Restarted", "Recreated", "Stopped", "Removed", "Pulled", "Built":
			return true
		}
	}
	return false
}

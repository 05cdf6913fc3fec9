// utils/remote_fs.go
package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/docker/docker/client"
	"github.com/goccy/go-yaml"

	"rolewarden/common"
)

// File states accepted by EnsureFile.
const (
	FileDirectory = "directory"
	FileAbsent    = "absent"
)

// RemoteClient executes reconciliation primitives against one target host.
// Connections are established lazily: constructing a client touches nothing,
// so a run that never reaches a primitive never dials the host.
type RemoteClient struct {
	target HostRow

	mu         sync.Mutex
	docker     *client.Client
	dockerDone func()
}

func NewRemoteClient(h HostRow) *RemoteClient {
	return &RemoteClient{target: h}
}

// Host returns the target this client operates on.
func (c *RemoteClient) Host() HostRow { return c.target }

// Close releases the cached Docker client. Pooled SSH connections are shared
// and stay open.
func (c *RemoteClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dockerDone != nil {
		c.dockerDone()
		c.docker = nil
		c.dockerDone = nil
	}
}

// StatFile reports whether path exists on the host. Existence itself is
// never a change; only transport or shell breakage fails the result.
func (c *RemoteClient) StatFile(ctx context.Context, path string) (bool, Result) {
	out, err := RunCommand(ctx, c.target, "test -e "+ShellQuote(path))
	if err != nil {
		return false, Failure(err.Error())
	}
	switch out.ExitCode {
	case 0:
		return true, Result{}
	case 1:
		return false, Result{}
	default:
		return false, Normalize(Raw{Failed: true, Msg: fmt.Sprintf("stat %s: exit %d", path, out.ExitCode), Stderr: out.Stderr})
	}
}

// EnsureFile drives path toward the requested state: "directory" creates the
// directory chain, "absent" removes whatever is there. Both are no-ops when
// the host already matches.
func (c *RemoteClient) EnsureFile(ctx context.Context, path, state string) Result {
	switch state {
	case FileDirectory:
		out, err := RunCommand(ctx, c.target, "test -d "+ShellQuote(path))
		if err != nil {
			return Failure(err.Error())
		}
		if out.ExitCode == 0 {
			return Result{}
		}
		out, err = RunCommand(ctx, c.target, "mkdir -p "+ShellQuote(path))
		if err != nil {
			return Failure(err.Error())
		}
		if out.ExitCode != 0 {
			return Normalize(Raw{Failed: true, Stderr: out.Stderr})
		}
		common.DebugLog("remote: host=%s created directory %s", c.target.Name, path)
		return Result{Changed: true}
	case FileAbsent:
		exists, res := c.StatFile(ctx, path)
		if res.Failed {
			return res
		}
		if !exists {
			return Result{}
		}
		out, err := RunCommand(ctx, c.target, "rm -rf "+ShellQuote(path))
		if err != nil {
			return Failure(err.Error())
		}
		if out.ExitCode != 0 {
			return Normalize(Raw{Failed: true, Stderr: out.Stderr})
		}
		common.DebugLog("remote: host=%s removed %s", c.target.Name, path)
		return Result{Changed: true}
	default:
		return Failure(fmt.Sprintf("unsupported file state %q", state))
	}
}

// WriteCompose renders data as YAML and lands it at dest with 0644. The
// rendered document is compared against what the host already has; an equal
// checksum is a no-op.
func (c *RemoteClient) WriteCompose(ctx context.Context, data map[string]any, dest string) Result {
	rendered, err := RenderComposeYAML(data)
	if err != nil {
		return Failure(fmt.Sprintf("render compose: %v", err))
	}

	localSum := sha256.Sum256(rendered)
	want := hex.EncodeToString(localSum[:])

	out, err := RunCommand(ctx, c.target, "sha256sum "+ShellQuote(dest)+" 2>/dev/null")
	if err != nil {
		return Failure(err.Error())
	}
	if out.ExitCode == 0 {
		if fields := strings.Fields(out.Stdout); len(fields) > 0 && strings.EqualFold(fields[0], want) {
			common.DebugLog("remote: host=%s compose unchanged at %s", c.target.Name, dest)
			return Result{}
		}
	}

	tmp := dest + ".tmp"
	cmd := "cat > " + ShellQuote(tmp) +
		" && chmod 0644 " + ShellQuote(tmp) +
		" && mv -f " + ShellQuote(tmp) + " " + ShellQuote(dest)
	wout, err := RunCommandInput(ctx, c.target, cmd, rendered)
	if err != nil {
		return Failure(err.Error())
	}
	if wout.ExitCode != 0 {
		return Normalize(Raw{Failed: true, Stderr: wout.Stderr})
	}
	common.DebugLog("remote: host=%s wrote compose %s (%d bytes)", c.target.Name, dest, len(rendered))
	return Result{Changed: true}
}

// RenderComposeYAML serializes a compose definition map. Keys come out
// sorted, so equal inputs always render byte-identical documents.
func RenderComposeYAML(data map[string]any) ([]byte, error) {
	return yaml.Marshal(data)
}

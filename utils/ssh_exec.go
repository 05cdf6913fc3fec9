// utils/ssh_exec.go
package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"rolewarden/common"
)

// CommandResult captures one remote command invocation. ExitCode is only
// meaningful when err from RunCommand is nil; a non-zero exit is not a
// transport error and is left for the caller to interpret.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// SSHUserFor resolves the login user for a host: inventory var first, then
// the SSH_USER env, then root.
func SSHUserFor(h HostRow) string {
	if u := strings.TrimSpace(h.Vars["ansible_user"]); u != "" {
		return u
	}
	return common.Env("SSH_USER", "root")
}

// SSHAddrFor resolves the dial address for a host: inventory ansible_host,
// then the host record address, then the host name.
func SSHAddrFor(h HostRow) string {
	if a := strings.TrimSpace(h.Vars["ansible_host"]); a != "" {
		return a
	}
	if h.Addr != "" {
		return h.Addr
	}
	return h.Name
}

// RunCommand executes cmd on the host through the pooled SSH connection.
func RunCommand(ctx context.Context, h HostRow, cmd string) (CommandResult, error) {
	return RunCommandInput(ctx, h, cmd, nil)
}

// RunCommandInput executes cmd on the host, feeding input to its stdin.
func RunCommandInput(ctx context.Context, h HostRow, cmd string, input []byte) (CommandResult, error) {
	keyFile := common.Env("SSH_KEY_FILE", "")
	if keyFile == "" {
		return CommandResult{}, fmt.Errorf("SSH_KEY_FILE not configured")
	}

	conn, err := SSHPool.GetSSHConnection(SSHUserFor(h), SSHAddrFor(h), keyFile)
	if err != nil {
		return CommandResult{}, err
	}

	session, err := conn.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("failed to open SSH session: %v", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if input != nil {
		session.Stdin = bytes.NewReader(input)
	}

	common.DebugLog("SSH exec: host=%s cmd=%s", h.Name, cmd)

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		// Best effort: tear the session down so the remote side notices.
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return CommandResult{}, ctx.Err()
	case err = <-done:
	}

	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return res, fmt.Errorf("SSH command failed: %v", err)
	}
	return res, nil
}

// ShellQuote wraps s in single quotes for safe interpolation into a remote
// shell command line.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// utils/ssh_transport.go
package utils

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/client"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"rolewarden/common"
)

// pooledConn is one cached SSH connection. The pool lock serializes all
// access, so the struct itself carries no locking.
type pooledConn struct {
	client   *ssh.Client
	lastUsed time.Time
}

type connPool struct {
	mu    sync.Mutex
	conns map[string]*pooledConn
}

// SSHPool caches SSH connections keyed by user@host. Connections are probed
// before reuse and dropped when the mux is dead.
var SSHPool = &connPool{conns: make(map[string]*pooledConn)}

// GetSSHConnection returns a live client for user@host, dialing when the
// pool has none.
func (p *connPool) GetSSHConnection(user, host, keyFile string) (*ssh.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := user + "@" + host
	if pc, ok := p.conns[key]; ok && pc.client != nil {
		// opening a session doubles as the liveness probe
		if s, err := pc.client.NewSession(); err == nil {
			s.Close()
			pc.lastUsed = time.Now()
			common.DebugLog("SSH: reusing existing connection to %s", key)
			return pc.client, nil
		}
		delete(p.conns, key)
	}

	common.DebugLog("SSH: creating new connection to %s", key)
	cl, err := dialSSH(user, host, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH client: %v", err)
	}
	p.conns[key] = &pooledConn{client: cl, lastUsed: time.Now()}
	return cl, nil
}

func dialSSH(user, host, keyFile string) (*ssh.Client, error) {
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key file %s: %v", keyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH private key: %v", err)
	}
	hostKeys, err := hostKeyPolicy()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         10 * time.Second,
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr += ":" + common.Env("SSH_PORT", "22")
	}

	cl, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server %s: %v", addr, err)
	}
	common.DebugLog("SSH: successfully connected to %s@%s", user, host)
	return cl, nil
}

// hostKeyPolicy returns the host key verification mode. Verification is off
// unless SSH_STRICT_HOST_KEY is set, in which case the known_hosts file
// (SSH_KNOWN_HOSTS, default ~/.ssh/known_hosts) must validate the host.
func hostKeyPolicy() (ssh.HostKeyCallback, error) {
	if !common.EnvBool("SSH_STRICT_HOST_KEY", "false") {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := common.Env("SSH_KNOWN_HOSTS", "")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("SSH_STRICT_HOST_KEY set but cannot resolve home dir: %v", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %v", path, err)
	}
	return cb, nil
}

// SSHTransport tunnels Docker API requests to the remote unix socket over an
// established SSH connection.
type SSHTransport struct {
	sshClient *ssh.Client
	sockPath  string
}

func (t *SSHTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	sock := t.sockPath
	if sock == "" {
		sock = common.Env("DOCKER_SOCK_PATH", "/var/run/docker.sock")
	}
	tr := &http.Transport{
		Dial: func(network, addr string) (net.Conn, error) {
			conn, err := t.sshClient.Dial("unix", sock)
			if err != nil {
				return nil, fmt.Errorf("failed to create SSH tunnel to Docker socket: %v", err)
			}
			return conn, nil
		},
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return tr.RoundTrip(req)
}

// CreateSSHDockerClient builds a Docker client whose HTTP layer rides the
// pooled SSH connection for user@host. The cleanup closes only the Docker
// client; the SSH connection stays pooled.
func CreateSSHDockerClient(user, host, keyFile string) (*client.Client, func(), error) {
	sshClient, err := SSHPool.GetSSHConnection(user, host, keyFile)
	if err != nil {
		return nil, nil, err
	}

	httpClient := &http.Client{
		Transport: &SSHTransport{sshClient: sshClient},
		Timeout:   30 * time.Second,
	}

	dockerClient, err := client.NewClientWithOpts(
		client.WithHost("unix://"+common.Env("DOCKER_SOCK_PATH", "/var/run/docker.sock")),
		client.WithHTTPClient(httpClient),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Docker client: %v", err)
	}

	common.DebugLog("SSH: created Docker client with SSH transport for %s@%s", user, host)
	return dockerClient, func() { _ = dockerClient.Close() }, nil
}

// ParseSSHURL splits ssh://user@host into its parts.
func ParseSSHURL(sshURL string) (user, host string, err error) {
	rest, ok := strings.CutPrefix(sshURL, "ssh://")
	if !ok {
		return "", "", fmt.Errorf("invalid SSH URL format: %s", sshURL)
	}
	user, host, ok = strings.Cut(rest, "@")
	if !ok || user == "" || host == "" {
		return "", "", fmt.Errorf("SSH URL must contain user@host format: %s", sshURL)
	}
	return user, host, nil
}

package utils

import "testing"

func TestDockerURLForPerHostOverride(t *testing.T) {
	h := HostRow{Name: "edge1", Vars: map[string]string{"docker_host": "tcp://10.0.0.5:2376"}}
	if got := DockerURLFor(h); got != "tcp://10.0.0.5:2376" {
		t.Fatalf("docker_host var should win, got %q", got)
	}
}

func TestDockerURLForLocalHostMapping(t *testing.T) {
	t.Setenv("ROLEWARDEN_LOCAL_HOST", "edge1")
	t.Setenv("DOCKER_SOCK_PATH", "/run/docker.sock")
	h := HostRow{Name: "Edge1"}
	if got := DockerURLFor(h); got != "unix:///run/docker.sock" {
		t.Fatalf("local host mapping expected unix socket, got %q", got)
	}
}

func TestDockerURLForSSHDefault(t *testing.T) {
	t.Setenv("SSH_USER", "ops")
	h := HostRow{Name: "edge1", Addr: "10.0.0.5"}
	if got := DockerURLFor(h); got != "ssh://ops@10.0.0.5" {
		t.Fatalf("ssh url expected, got %q", got)
	}
}

func TestDockerURLForTCP(t *testing.T) {
	t.Setenv("DOCKER_CONNECTION_METHOD", "tcp")
	t.Setenv("DOCKER_TCP_PORT", "2375")
	h := HostRow{Name: "edge1"}
	if got := DockerURLFor(h); got != "tcp://edge1:2375" {
		t.Fatalf("tcp url expected, got %q", got)
	}
}

func TestLocalHostAllowed(t *testing.T) {
	if !LocalHostAllowed(HostRow{Name: "a", Addr: "127.0.0.1"}) {
		t.Errorf("loopback addr should be allowed")
	}
	if !LocalHostAllowed(HostRow{Name: "a", Vars: map[string]string{"docker_local": "yes"}}) {
		t.Errorf("docker_local var should allow")
	}
	if LocalHostAllowed(HostRow{Name: "remote", Addr: "10.1.2.3"}) {
		t.Errorf("plain remote host should not be allowed")
	}
}

package utils

import "testing"

func TestShellQuote(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"/etc/docker-compose/nginx/docker-compose.yml", "'/etc/docker-compose/nginx/docker-compose.yml'"},
		{"with space", "'with space'"},
		{"dollar$var", "'dollar$var'"},
		{"single'quote", `'single'\''quote'`},
		{"", "''"},
	}
	for _, tc := range cases {
		if got := ShellQuote(tc.in); got != tc.want {
			t.Errorf("ShellQuote(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSSHUserFor(t *testing.T) {
	t.Setenv("SSH_USER", "deploy")

	h := HostRow{Name: "edge1", Vars: map[string]string{"ansible_user": "ops"}}
	if got := SSHUserFor(h); got != "ops" {
		t.Fatalf("inventory var should win, got %q", got)
	}

	h.Vars = map[string]string{}
	if got := SSHUserFor(h); got != "deploy" {
		t.Fatalf("env fallback expected, got %q", got)
	}
}

func TestSSHAddrFor(t *testing.T) {
	h := HostRow{Name: "edge1", Addr: "10.0.0.5", Vars: map[string]string{"ansible_host": "10.9.9.9"}}
	if got := SSHAddrFor(h); got != "10.9.9.9" {
		t.Fatalf("ansible_host should win, got %q", got)
	}
	h.Vars = nil
	if got := SSHAddrFor(h); got != "10.0.0.5" {
		t.Fatalf("addr fallback expected, got %q", got)
	}
	h.Addr = ""
	if got := SSHAddrFor(h); got != "edge1" {
		t.Fatalf("name fallback expected, got %q", got)
	}
}

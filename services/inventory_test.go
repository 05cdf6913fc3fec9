package services

import (
	"testing"

	"rolewarden/common"
)

func TestDetectInventoryFormatYAML(t *testing.T) {
	src := []byte(`all:
  hosts:
    edge1:
      ansible_host: 10.0.0.5
      ansible_user: ops
    edge2: {}
  children:
    web:
      hosts:
        edge1: {}
`)
	kind, hs, err := detectInventoryFormat(src)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if kind != "yaml" {
		t.Fatalf("kind = %q", kind)
	}
	if len(hs) != 2 {
		t.Fatalf("hosts = %+v", hs)
	}
	// sorted by name
	if hs[0].Name != "edge1" || hs[1].Name != "edge2" {
		t.Fatalf("order = %s, %s", hs[0].Name, hs[1].Name)
	}
	if hs[0].Addr != "10.0.0.5" {
		t.Fatalf("addr = %q", hs[0].Addr)
	}
	if hs[0].Vars["ansible_user"] != "ops" {
		t.Fatalf("vars = %+v", hs[0].Vars)
	}
	if len(hs[0].Groups) != 1 || hs[0].Groups[0] != "web" {
		t.Fatalf("groups = %+v", hs[0].Groups)
	}
}

func TestDetectInventoryFormatINI(t *testing.T) {
	src := []byte(`# edge fleet
edge1 ansible_host=10.0.0.5 ansible_user=ops
[web]
edge2 ansible_host=10.0.0.6
[web:vars]
ignored=yes
`)
	kind, hs, err := detectInventoryFormat(src)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if kind != "ini" {
		t.Fatalf("kind = %q", kind)
	}
	if len(hs) != 2 {
		t.Fatalf("hosts = %+v", hs)
	}
	if hs[0].Name != "edge1" || hs[0].Addr != "10.0.0.5" {
		t.Fatalf("first host = %+v", hs[0])
	}
	if len(hs[1].Groups) != 1 || hs[1].Groups[0] != "web" {
		t.Fatalf("groups = %+v", hs[1].Groups)
	}
}

func TestDetectInventoryFormatFlatHosts(t *testing.T) {
	src := []byte(`hosts:
  edge1:
    ansible_host: 10.0.0.5
`)
	kind, hs, err := detectInventoryFormat(src)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if kind != "yaml" || len(hs) != 1 || hs[0].Addr != "10.0.0.5" {
		t.Fatalf("kind=%q hosts=%+v", kind, hs)
	}
}

func TestDetectInventoryFormatEmpty(t *testing.T) {
	if _, _, err := detectInventoryFormat([]byte("# no hosts in here\n")); err == nil {
		t.Fatalf("host-less input must not parse")
	}
}

func TestFallbackHostRowsMirrorSnapshot(t *testing.T) {
	invMu.Lock()
	saved := hosts
	hosts = []common.Host{
		{Name: "edge1", Addr: "10.0.0.5", Vars: map[string]string{"docker_host": "unix:///var/run/docker.sock"}, Groups: []string{"web"}, Owner: "team-a"},
		{Name: "edge2"},
	}
	invMu.Unlock()
	defer func() {
		invMu.Lock()
		hosts = saved
		invMu.Unlock()
	}()

	rows := FallbackHostRows()
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Name != "edge1" || rows[0].Addr != "10.0.0.5" || rows[0].Owner != "team-a" {
		t.Fatalf("first row = %+v", rows[0])
	}
	if rows[0].Vars["docker_host"] != "unix:///var/run/docker.sock" {
		t.Fatalf("vars lost: %+v", rows[0].Vars)
	}
	if len(rows[0].Groups) != 1 || rows[0].Groups[0] != "web" {
		t.Fatalf("groups lost: %+v", rows[0].Groups)
	}
	if rows[1].Owner != "unassigned" {
		t.Fatalf("owner default not applied: %+v", rows[1])
	}
	if rows[1].Status != "unknown" || rows[1].Vars == nil {
		t.Fatalf("second row = %+v", rows[1])
	}
}

func TestInventoryOwnerDefault(t *testing.T) {
	t.Setenv("ROLEWARDEN_DEFAULT_OWNER", "platform")
	src := []byte(`all:
  hosts:
    edge1:
      owner: team-a
    edge2: {}
`)
	_, hs, err := detectInventoryFormat(src)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if hs[0].Owner != "team-a" {
		t.Fatalf("explicit owner lost: %+v", hs[0])
	}
	if hs[1].Owner != "platform" {
		t.Fatalf("default owner not applied: %+v", hs[1])
	}
}

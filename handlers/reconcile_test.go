package handlers

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestReconcileArgsMerge(t *testing.T) {
	req := reconcileRequest{
		Args:       "role=oldname images=present junk",
		Role:       "nginx",
		Containers: "started",
	}
	raw, complexArgs := reconcileArgs(req)

	if raw["role"] != "oldname" || raw["images"] != "present" {
		t.Fatalf("raw args not parsed: %v", raw)
	}
	if _, ok := raw["junk"]; ok {
		t.Errorf("token without '=' should be dropped: %v", raw)
	}
	if complexArgs["role"] != "nginx" {
		t.Errorf("structured role missing: %v", complexArgs)
	}
	if complexArgs["containers"] != "started" {
		t.Errorf("structured containers missing: %v", complexArgs)
	}
	if _, ok := complexArgs["images"]; ok {
		t.Errorf("unset structured field must not appear: %v", complexArgs)
	}
	if _, ok := complexArgs["data"]; ok {
		t.Errorf("nil data must not appear: %v", complexArgs)
	}
}

func TestReconcileArgsDataIncluded(t *testing.T) {
	req := reconcileRequest{
		Data: map[string]any{"web": map[string]any{"image": "nginx:1.25"}},
	}
	_, complexArgs := reconcileArgs(req)
	d, ok := complexArgs["data"].(map[string]any)
	if !ok || len(d) != 1 {
		t.Fatalf("data not carried through: %v", complexArgs)
	}
}

func TestArgStringPrefersStructured(t *testing.T) {
	raw := map[string]string{"role": "fromraw", "images": "latest"}
	complexArgs := map[string]any{"role": "fromjson"}

	if got := argString(raw, complexArgs, "role"); got != "fromjson" {
		t.Errorf("role = %q, want structured value", got)
	}
	if got := argString(raw, complexArgs, "images"); got != "latest" {
		t.Errorf("images = %q, want raw fallback", got)
	}
	if got := argString(raw, complexArgs, "containers"); got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}
}

func TestParseCheckFlag(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"check=1", true},
		{"check=true", true},
		{"check=yes", true},
		{"check=on", true},
		{"check=0", false},
		{"check=false", false},
		{"check=", false},
		{"", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("POST", "/hosts/h1/reconcile?"+tc.query, nil)
		if got := parseCheckFlag(r); got != tc.want {
			t.Errorf("parseCheckFlag(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestReconcileTimeoutBounds(t *testing.T) {
	cases := []struct {
		query string
		want  time.Duration
	}{
		{"", 10 * time.Minute},
		{"timeout=30s", 30 * time.Second},
		{"timeout=2h", 30 * time.Minute},
		{"timeout=-5s", 10 * time.Minute},
		{"timeout=bogus", 10 * time.Minute},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("POST", "/hosts/h1/reconcile?"+tc.query, nil)
		if got := reconcileTimeout(r); got != tc.want {
			t.Errorf("reconcileTimeout(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

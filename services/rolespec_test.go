package services

import (
	"errors"
	"reflect"
	"testing"
)

func nginxData() map[string]any {
	return map[string]any{
		"web": map[string]any{
			"image": "nginx:1.27",
			"ports": []any{"80:80"},
		},
	}
}

func TestNewRoleSpecRequiresRole(t *testing.T) {
	_, err := NewRoleSpec(map[string]string{}, map[string]any{"data": nginxData()})
	if !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("want ErrRoleRequired, got %v", err)
	}
	if err.Error() != "role is required" {
		t.Fatalf("message must be stable, got %q", err.Error())
	}
}

func TestNewRoleSpecRequiresData(t *testing.T) {
	_, err := NewRoleSpec(map[string]string{"role": "nginx"}, nil)
	if !errors.Is(err, ErrDataRequired) {
		t.Fatalf("want ErrDataRequired, got %v", err)
	}
	if err.Error() != "data is required" {
		t.Fatalf("message must be stable, got %q", err.Error())
	}
}

func TestNewRoleSpecRoleCheckedBeforeData(t *testing.T) {
	_, err := NewRoleSpec(nil, nil)
	if !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("role validation must run first, got %v", err)
	}
}

func TestNewRoleSpecEmptyDataRejected(t *testing.T) {
	_, err := NewRoleSpec(map[string]string{"role": "nginx"}, map[string]any{"data": map[string]any{}})
	if !errors.Is(err, ErrDataRequired) {
		t.Fatalf("empty data must be rejected, got %v", err)
	}
}

func TestNewRoleSpecStructuredArgsWin(t *testing.T) {
	raw := map[string]string{"role": "from-raw", "images": "latest"}
	complexArgs := map[string]any{"role": "from-structured", "data": nginxData()}
	spec, err := NewRoleSpec(raw, complexArgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Role() != "from-structured" {
		t.Fatalf("structured role should win, got %q", spec.Role())
	}
	if spec.ImagesState() != ImageLatest {
		t.Fatalf("raw-only key should survive the merge, got %q", spec.ImagesState())
	}
}

func TestNewRoleSpecIgnoresUnknownKeys(t *testing.T) {
	raw := map[string]string{"role": "nginx", "bogus": "1"}
	complexArgs := map[string]any{"data": nginxData(), "extra": []int{1, 2}}
	if _, err := NewRoleSpec(raw, complexArgs); err != nil {
		t.Fatalf("unknown keys must be ignored, got %v", err)
	}
}

func TestNewRoleSpecUnknownPoliciesAreNoops(t *testing.T) {
	raw := map[string]string{"role": "nginx", "images": "shiny", "containers": "sideways"}
	spec, err := NewRoleSpec(raw, map[string]any{"data": nginxData()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.ImagesState() != ImageNone || spec.ContainersState() != ContainersNone {
		t.Fatalf("unrecognized policies must map to none, got %q/%q", spec.ImagesState(), spec.ContainersState())
	}
}

func TestComposePaths(t *testing.T) {
	spec, err := NewRoleSpec(map[string]string{"role": "nginx"}, map[string]any{"data": nginxData()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := spec.ComposeDir(); got != "/etc/docker-compose/nginx" {
		t.Fatalf("compose dir = %q", got)
	}
	if got := spec.ComposeFile(); got != "/etc/docker-compose/nginx/docker-compose.yml" {
		t.Fatalf("compose file = %q", got)
	}
}

func TestComposePathsHonorConfigRoot(t *testing.T) {
	t.Setenv("ROLEWARDEN_CONFIG_ROOT", "/srv/compose")
	spec, err := NewRoleSpec(map[string]string{"role": "nginx"}, map[string]any{"data": nginxData()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := spec.ComposeFile(); got != "/srv/compose/nginx/docker-compose.yml" {
		t.Fatalf("compose file = %q", got)
	}
}

func TestImagesSortedWithDuplicates(t *testing.T) {
	data := map[string]any{
		"zeta":  map[string]any{"image": "redis:7"},
		"alpha": map[string]any{"image": "nginx:1.27"},
		"mid":   map[string]any{"image": "redis:7"},
		"build": map[string]any{"build": "./app"},
	}
	spec, err := NewRoleSpec(map[string]string{"role": "mixed"}, map[string]any{"data": data})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"nginx:1.27", "redis:7", "redis:7"}
	if got := spec.Images(); !reflect.DeepEqual(got, want) {
		t.Fatalf("images = %v, want %v", got, want)
	}
}

func TestParseKV(t *testing.T) {
	got := ParseKV("role=nginx images=latest stray containers=started role=nginx2")
	want := map[string]string{"role": "nginx2", "images": "latest", "containers": "started"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseKV = %v, want %v", got, want)
	}
	if len(ParseKV("")) != 0 {
		t.Fatalf("empty input should parse to empty map")
	}
}

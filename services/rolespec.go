// services/rolespec.go
package services

import (
	"errors"
	"sort"
	"strings"

	"rolewarden/common"
)

// Validation failures surface verbatim as the run's failure message.
var (
	ErrRoleRequired = errors.New("role is required")
	ErrDataRequired = errors.New("data is required")
)

// ImagePolicy says what should happen to the images a role references.
type ImagePolicy string

const (
	ImageNone    ImagePolicy = ""
	ImagePresent ImagePolicy = "present"
	ImageLatest  ImagePolicy = "latest"
	ImageAbsent  ImagePolicy = "absent"
)

// ContainerPolicy says what should happen to the role's containers.
type ContainerPolicy string

const (
	ContainersNone      ContainerPolicy = ""
	ContainersPresent   ContainerPolicy = "present"
	ContainersStarted   ContainerPolicy = "started"
	ContainersRestarted ContainerPolicy = "restarted"
	ContainersAbsent    ContainerPolicy = "absent"
)

// ParseImagePolicy maps a request value onto the closed policy set.
// Anything unrecognized means "leave images alone".
func ParseImagePolicy(s string) ImagePolicy {
	switch strings.TrimSpace(s) {
	case "present":
		return ImagePresent
	case "latest":
		return ImageLatest
	case "absent":
		return ImageAbsent
	default:
		return ImageNone
	}
}

// ParseContainerPolicy maps a request value onto the closed policy set.
// Anything unrecognized means "leave containers alone".
func ParseContainerPolicy(s string) ContainerPolicy {
	switch strings.TrimSpace(s) {
	case "present":
		return ContainersPresent
	case "started":
		return ContainersStarted
	case "restarted":
		return ContainersRestarted
	case "absent":
		return ContainersAbsent
	default:
		return ContainersNone
	}
}

// RoleSpec is the validated, immutable description of one reconciliation
// request: which role, its compose definition, and the desired image and
// container policies.
type RoleSpec struct {
	role       string
	data       map[string]any
	images     ImagePolicy
	containers ContainerPolicy
}

// NewRoleSpec merges raw key=value arguments with structured arguments
// (structured wins per key), validates, and freezes the result. Unknown
// keys are ignored.
func NewRoleSpec(raw map[string]string, complexArgs map[string]any) (*RoleSpec, error) {
	merged := make(map[string]any, len(raw)+len(complexArgs))
	for k, v := range raw {
		merged[k] = v
	}
	for k, v := range complexArgs {
		merged[k] = v
	}

	role, _ := merged["role"].(string)
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, ErrRoleRequired
	}

	data := asDataMap(merged["data"])
	if len(data) == 0 {
		return nil, ErrDataRequired
	}

	spec := &RoleSpec{
		role: role,
		data: data,
	}
	if v, ok := merged["images"].(string); ok {
		spec.images = ParseImagePolicy(v)
	}
	if v, ok := merged["containers"].(string); ok {
		spec.containers = ParseContainerPolicy(v)
	}
	return spec, nil
}

// asDataMap accepts the shapes a compose definition arrives in: decoded
// JSON/YAML mappings. Anything else counts as missing.
func asDataMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out
	default:
		return nil
	}
}

func (s *RoleSpec) Role() string { return s.role }

func (s *RoleSpec) ImagesState() ImagePolicy { return s.images }

func (s *RoleSpec) ContainersState() ContainerPolicy { return s.containers }

// Data returns the compose definition. Callers treat it as read-only.
func (s *RoleSpec) Data() map[string]any { return s.data }

// ComposeDir is where the role's compose file lives on the target host.
// The role name goes into the path as-is.
func (s *RoleSpec) ComposeDir() string {
	return common.Env("ROLEWARDEN_CONFIG_ROOT", "/etc/docker-compose") + "/" + s.role
}

// ComposeFile is the full path of the role's compose file on the target.
func (s *RoleSpec) ComposeFile() string {
	return s.ComposeDir() + "/docker-compose.yml"
}

// Images lists every image reference the compose definition names, in
// sorted service order. Duplicates are kept; services without an image
// (build-only and the like) are skipped.
func (s *RoleSpec) Images() []string {
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)

	var images []string
	for _, name := range names {
		svc, ok := s.data[name].(map[string]any)
		if !ok {
			if alt, ok2 := s.data[name].(map[any]any); ok2 {
				svc = asDataMap(alt)
			} else {
				continue
			}
		}
		if img, ok := svc["image"].(string); ok {
			images = append(images, img)
		}
	}
	return images
}

// ParseKV tokenizes a key=value argument string. Tokens without '=' are
// dropped; later duplicates win.
func ParseKV(s string) map[string]string {
	out := map[string]string{}
	for _, tok := range strings.Fields(s) {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

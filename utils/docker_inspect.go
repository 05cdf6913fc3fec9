// utils/docker_inspect.go
package utils

import (
	"context"
	"strings"
)

// InspectOut is the trimmed-down inspect payload the API returns. It keeps
// the fields an operator needs to compare a container against its role.
type InspectOut struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	State         string            `json:"state"`
	Health        string            `json:"health,omitempty"`
	Created       string            `json:"created"`
	Cmd           []string          `json:"cmd,omitempty"`
	Entrypoint    []string          `json:"entrypoint,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
	RestartPolicy string            `json:"restart_policy,omitempty"`
	Ports         []PortBindingOut  `json:"ports,omitempty"`
	Volumes       []VolumeOut       `json:"volumes,omitempty"`
	Networks      []string          `json:"networks,omitempty"`
}

type PortBindingOut struct {
	Published string `json:"published,omitempty"`
	Target    string `json:"target,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
}

type VolumeOut struct {
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
	Mode   string `json:"mode,omitempty"`
	RW     bool   `json:"rw"`
}

// InspectContainer inspects one container on the host and flattens the
// daemon's response into InspectOut.
func InspectContainer(ctx context.Context, h HostRow, container string) (*InspectOut, error) {
	cli, done, err := NewDockerClient(ctx, h)
	if err != nil {
		return nil, err
	}
	defer done()

	ins, err := cli.ContainerInspect(ctx, container)
	if err != nil {
		return nil, err
	}

	out := &InspectOut{
		ID:      ins.ID,
		Name:    strings.TrimPrefix(ins.Name, "/"),
		Created: ins.Created,
		Env:     map[string]string{},
		Labels:  map[string]string{},
	}

	if c := ins.Config; c != nil {
		out.Image = c.Image
		out.Cmd = append([]string{}, c.Cmd...)
		out.Entrypoint = append([]string{}, c.Entrypoint...)
		out.Env = envMap(c.Env)
		if c.Labels != nil {
			out.Labels = c.Labels
		}
	}

	if st := ins.State; st != nil {
		out.State = st.Status
		if st.Health != nil {
			out.Health = st.Health.Status
		}
	}

	if hc := ins.HostConfig; hc != nil {
		out.RestartPolicy = string(hc.RestartPolicy.Name)

		for port, bindings := range hc.PortBindings {
			target, proto := port.Port(), string(port.Proto())
			if len(bindings) == 0 {
				out.Ports = append(out.Ports, PortBindingOut{Target: target, Protocol: proto})
				continue
			}
			for _, b := range bindings {
				pub := b.HostPort
				// keep the bind address visible unless it is the wildcard
				if b.HostIP != "" && b.HostIP != "0.0.0.0" {
					pub = b.HostIP + ":" + b.HostPort
				}
				out.Ports = append(out.Ports, PortBindingOut{Published: pub, Target: target, Protocol: proto})
			}
		}
	}

	for _, m := range ins.Mounts {
		out.Volumes = append(out.Volumes, VolumeOut{
			Source: m.Source,
			Target: m.Destination,
			Mode:   m.Mode,
			RW:     m.RW,
		})
	}

	if ins.NetworkSettings != nil {
		for name := range ins.NetworkSettings.Networks {
			out.Networks = append(out.Networks, name)
		}
	}

	return out, nil
}

// envMap turns the daemon's KEY=VALUE slice into a map. A bare KEY maps to
// the empty string.
func envMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, e := range env {
		k, v, _ := strings.Cut(e, "=")
		if k != "" {
			out[k] = v
		}
	}
	return out
}

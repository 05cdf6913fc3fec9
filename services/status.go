// services/status.go
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"

	"rolewarden/common"
	"rolewarden/database"
	"rolewarden/utils"
)

// ErrSkipProbe marks hosts intentionally left alone: remote hosts that would
// otherwise be probed through the local socket.
var ErrSkipProbe = errors.New("skip probe")

// TargetFor converts an inventory record into the dialing shape the remote
// primitives take.
func TargetFor(h database.HostRow) utils.HostRow {
	return utils.HostRow{Name: h.Name, Addr: h.Addr, Vars: h.Vars}
}

// RoleContainer is one live container belonging to a role.
type RoleContainer struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Service string           `json:"service,omitempty"`
	Image   string           `json:"image"`
	State   string           `json:"state"`
	Status  string           `json:"status"`
	Created *time.Time       `json:"created,omitempty"`
	IP      string           `json:"ip,omitempty"`
	Ports   []map[string]any `json:"ports,omitempty"`
}

// RoleStatus is the observed state of a role on a host.
type RoleStatus struct {
	Host       string          `json:"host"`
	Role       string          `json:"role"`
	Project    string          `json:"project"`
	Running    int             `json:"running"`
	Total      int             `json:"total"`
	Containers []RoleContainer `json:"containers"`
}

// GetRoleStatus lists the containers carrying the role's compose project
// label and inspects each for detail.
func GetRoleStatus(ctx context.Context, h database.HostRow, role string) (*RoleStatus, error) {
	target := TargetFor(h)
	url := utils.DockerURLFor(target)
	if utils.IsUnixSock(url) && !utils.LocalHostAllowed(target) {
		return nil, ErrSkipProbe
	}

	cli, done, err := utils.NewDockerClient(ctx, target)
	if err != nil {
		return nil, err
	}
	defer done()

	project := utils.ComposeProjectForRole(role)
	flt := filters.NewArgs()
	flt.Add("label", "com.docker.compose.project="+project)

	list, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: flt})
	if err != nil {
		return nil, err
	}

	out := &RoleStatus{
		Host:       h.Name,
		Role:       role,
		Project:    project,
		Containers: make([]RoleContainer, 0, len(list)),
	}

	for _, c := range list {
		rc := RoleContainer{
			ID:     c.ID,
			Image:  c.Image,
			State:  c.State,
			Status: c.Status,
		}
		if len(c.Names) > 0 {
			rc.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		if c.Created > 0 {
			t := time.Unix(c.Created, 0).UTC()
			rc.Created = &t
		}

		ci, err := cli.ContainerInspect(ctx, c.ID)
		if err != nil {
			common.WarnLog("status: host=%s inspect %s failed: %v", h.Name, rc.Name, err)
		} else {
			if ci.Config != nil && ci.Config.Labels != nil {
				rc.Service = ci.Config.Labels["com.docker.compose.service"]
			}
			if ci.NetworkSettings != nil {
				if ci.NetworkSettings.Ports != nil {
					rc.Ports = flattenPorts(ci.NetworkSettings.Ports)
				}
				if ci.NetworkSettings.IPAddress != "" {
					rc.IP = ci.NetworkSettings.IPAddress
				} else if ci.NetworkSettings.Networks != nil {
					for _, ep := range ci.NetworkSettings.Networks {
						if ep != nil && ep.IPAddress != "" {
							rc.IP = ep.IPAddress
							break
						}
					}
				}
			}
		}

		if strings.EqualFold(c.State, "running") {
			out.Running++
		}
		out.Containers = append(out.Containers, rc)
	}

	out.Total = len(out.Containers)
	return out, nil
}

// ProbeHost pings the host's Docker endpoint and records the result on the
// inventory row. Returns the status it stored.
func ProbeHost(ctx context.Context, h database.HostRow) (string, error) {
	target := TargetFor(h)
	url := utils.DockerURLFor(target)

	// refuse probing many hosts through a single local sock
	if utils.IsUnixSock(url) && !utils.LocalHostAllowed(target) {
		return "", ErrSkipProbe
	}

	// NewDockerClient pings the daemon before returning.
	_, done, err := utils.NewDockerClient(ctx, target)
	if err != nil {
		if derr := database.MarkHostStatus(ctx, h.Name, "down"); derr != nil {
			common.WarnLog("probe: host=%s mark down failed: %v", h.Name, derr)
		}
		return "down", err
	}
	defer done()

	if err := database.MarkHostStatus(ctx, h.Name, "up"); err != nil {
		common.WarnLog("probe: host=%s mark up failed: %v", h.Name, err)
	}
	return "up", nil
}

func flattenPorts(pm nat.PortMap) []map[string]any {
	out := make([]map[string]any, 0, len(pm))
	for port, binds := range pm {
		privateStr := port.Port()
		private, _ := strconv.Atoi(privateStr)
		typ := string(port.Proto())
		if len(binds) == 0 {
			out = append(out, map[string]any{
				"IP": "", "PublicPort": 0, "PrivatePort": private, "Type": typ,
			})
			continue
		}
		for _, b := range binds {
			pub, _ := strconv.Atoi(b.HostPort)
			out = append(out, map[string]any{
				"IP": b.HostIP, "PublicPort": pub, "PrivatePort": private, "Type": typ,
			})
		}
	}
	return out
}

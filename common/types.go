// common/types.go
package common

// Host is one parsed inventory record. Addr is taken from ansible_host when
// the inventory sets it; every other per-host variable lands in Vars
// verbatim. Owner comes from the host's owner var, falling back to
// ROLEWARDEN_DEFAULT_OWNER.
type Host struct {
	Name   string            `json:"name"`
	Addr   string            `json:"addr"`
	Vars   map[string]string `json:"vars,omitempty"`
	Groups []string          `json:"groups,omitempty"`
	Owner  string            `json:"owner,omitempty"`
}

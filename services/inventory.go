// services/inventory.go
package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"rolewarden/common"
	"rolewarden/database"
)

var (
	invMu   sync.RWMutex
	invPath string
	hosts   []common.Host
)

func InitInventory() error {
	p := common.Env("ROLEWARDEN_INVENTORY_PATH", "")
	if p == "" {
		p = findInventoryPath()
		if p == "" {
			// Try a few times in case the mount is slow
			for i := 0; i < 5; i++ {
				common.InfoLog("Inventory file not found (attempt %d/5), waiting...", i+1)
				time.Sleep(2 * time.Second)
				p = findInventoryPath()
				if p != "" {
					break
				}
			}
			if p == "" {
				return errors.New("no inventory file found; set ROLEWARDEN_INVENTORY_PATH or mount /data/inventory")
			}
		}
	}
	setInventoryPath(p)
	return loadInventory(p)
}

func ReloadInventory() error {
	p := InventoryPath()
	if p == "" {
		return errors.New("inventory not initialized")
	}
	return loadInventory(p)
}

// ReloadInventoryWithPath switches the backing file, then reloads from it.
func ReloadInventoryWithPath(p string) error {
	if p == "" {
		return ReloadInventory()
	}
	setInventoryPath(p)
	return loadInventory(p)
}

func GetHosts() []common.Host {
	invMu.RLock()
	defer invMu.RUnlock()
	out := make([]common.Host, len(hosts))
	copy(out, hosts)
	return out
}

// FallbackHostRows shapes the in-memory snapshot like the database listing,
// so host queries stay answerable while Postgres is unreachable. Probe
// columns are not mirrored here; status reads "unknown" until the database
// is back.
func FallbackHostRows() []database.HostRow {
	snapshot := GetHosts()
	out := make([]database.HostRow, 0, len(snapshot))
	for _, h := range snapshot {
		owner := h.Owner
		if owner == "" {
			owner = "unassigned"
		}
		vars := h.Vars
		if vars == nil {
			vars = map[string]string{}
		}
		out = append(out, database.HostRow{
			Name:   h.Name,
			Addr:   h.Addr,
			Vars:   vars,
			Groups: h.Groups,
			Owner:  owner,
			Status: "unknown",
		})
	}
	return out
}

// InventoryPath reports the file currently backing the inventory.
func InventoryPath() string {
	invMu.RLock()
	defer invMu.RUnlock()
	return invPath
}

func setInventoryPath(p string) {
	invMu.Lock()
	invPath = p
	invMu.Unlock()
}

func findInventoryPath() string {
	cands := []string{"/data/inventory", "/data/inventory.yml", "/data/inventory.yaml"}
	for _, c := range cands {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c
		}
	}
	return ""
}

func loadInventory(p string) error {
	b, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	kind, parsed, derr := detectInventoryFormat(b)
	if derr != nil {
		return derr
	}

	// Postgres first, then the in-memory copy that backs GetHosts.
	if err := database.ImportInventoryToDB(context.Background(), parsed); err != nil {
		return err
	}
	invMu.Lock()
	hosts = parsed
	invMu.Unlock()

	common.InfoLog("inventory: loaded %d hosts from %s (%s)", len(parsed), p, kind)
	return nil
}

// detectInventoryFormat tries the strict YAML layout, then INI, then the
// lenient bare "hosts:" map.
func detectInventoryFormat(b []byte) (string, []common.Host, error) {
	if hs, err := parseYAMLInventory(b); err == nil && len(hs) > 0 {
		return "yaml", hs, nil
	}
	if hs, err := parseINIInventory(b); err == nil && len(hs) > 0 {
		return "ini", hs, nil
	}
	type flatY struct {
		Hosts map[string]map[string]any `yaml:"hosts"`
	}
	var fy flatY
	if err := yaml.Unmarshal(b, &fy); err == nil && len(fy.Hosts) > 0 {
		y := yamlInventory{}
		y.All.Hosts = fy.Hosts
		return "yaml", mapYamlToHosts(y), nil
	}
	return "", nil, errors.New("unable to parse inventory as YAML or INI")
}

// YAML: all.hosts.<name>.ansible_host, groups under all.children.<group>.hosts
type yamlInventory struct {
	All struct {
		Hosts    map[string]map[string]any `yaml:"hosts"`
		Children map[string]struct {
			Hosts map[string]map[string]any `yaml:"hosts"`
		} `yaml:"children"`
	} `yaml:"all"`
}

func parseYAMLInventory(b []byte) ([]common.Host, error) {
	var y yamlInventory
	if err := yaml.Unmarshal(b, &y); err != nil {
		return nil, err
	}
	if len(y.All.Hosts) == 0 && len(y.All.Children) == 0 {
		return nil, errors.New("yaml: no hosts found")
	}
	return mapYamlToHosts(y), nil
}

func mapYamlToHosts(y yamlInventory) []common.Host {
	byName := map[string]*common.Host{}

	add := func(name string, vars map[string]any, group string) {
		h, ok := byName[name]
		if !ok {
			h = &common.Host{Name: name, Vars: map[string]string{}}
			byName[name] = h
		}
		for k, v := range vars {
			if k == "ansible_host" {
				if s, ok := v.(string); ok {
					h.Addr = s
				}
				continue
			}
			h.Vars[k] = stringify(v)
		}
		if group != "" {
			h.Groups = appendGroup(h.Groups, group)
		}
	}

	for name, vars := range y.All.Hosts {
		add(name, vars, "")
	}
	for group, child := range y.All.Children {
		for name, vars := range child.Hosts {
			add(name, vars, group)
		}
	}

	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]common.Host, 0, len(names))
	for _, n := range names {
		h := byName[n]
		applyOwner(h)
		out = append(out, *h)
	}
	return out
}

// parseINIInventory handles the classic line format, one host per line:
// "name ansible_host=1.2.3.4 foo=bar". [section] headers become groups.
func parseINIInventory(b []byte) ([]common.Host, error) {
	sc := bufio.NewScanner(strings.NewReader(string(b)))
	byName := map[string]*common.Host{}
	var order []string
	group := ""
	skip := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			section := strings.Trim(line, "[]")
			// :vars and :children sections carry no host lines we honor
			if strings.Contains(section, ":") {
				group = ""
				skip = true
			} else {
				group = section
				skip = false
			}
			continue
		}
		if skip {
			continue
		}
		fs := strings.Fields(line)
		if len(fs) == 0 {
			continue
		}
		// a name ending in ":" is a YAML mapping line, not an INI host
		if strings.HasSuffix(fs[0], ":") {
			return nil, errors.New("ini: yaml-style mapping lines")
		}
		h, ok := byName[fs[0]]
		if !ok {
			h = &common.Host{Name: fs[0], Vars: map[string]string{}}
			byName[fs[0]] = h
			order = append(order, fs[0])
		}
		for _, f := range fs[1:] {
			kv := strings.SplitN(f, "=", 2)
			if len(kv) != 2 {
				continue
			}
			k, v := kv[0], kv[1]
			if k == "ansible_host" {
				h.Addr = v
			} else {
				h.Vars[k] = v
			}
		}
		if group != "" {
			h.Groups = appendGroup(h.Groups, group)
		}
	}
	if len(byName) == 0 {
		return nil, errors.New("ini: no hosts found")
	}
	out := make([]common.Host, 0, len(order))
	for _, n := range order {
		h := byName[n]
		applyOwner(h)
		out = append(out, *h)
	}
	return out, nil
}

func applyOwner(h *common.Host) {
	if o, ok := h.Vars["owner"]; ok && o != "" {
		h.Owner = o
	} else if def := common.Env("ROLEWARDEN_DEFAULT_OWNER", ""); def != "" {
		h.Owner = def
	}
}

func appendGroup(groups []string, g string) []string {
	for _, have := range groups {
		if have == g {
			return groups
		}
	}
	return append(groups, g)
}

func stringify(v any) string { return fmt.Sprintf("%v", v) }

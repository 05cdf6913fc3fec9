// database/db_hosts.go
package database

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"rolewarden/common"
)

// HostRow is the persisted inventory record for one target host.
type HostRow struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Addr      string            `json:"addr"`
	Vars      map[string]string `json:"vars,omitempty"`
	Groups    []string          `json:"groups,omitempty"`
	Owner     string            `json:"owner"`
	Status    string            `json:"status"`
	LastSeen  *time.Time        `json:"last_seen,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ImportInventoryToDB upserts the parsed inventory. Rows keep their probe
// status; owner only changes when the inventory supplies one.
func ImportInventoryToDB(ctx context.Context, items []common.Host) error {
	for _, h := range items {
		// ensure non-nil/empty
		if h.Vars == nil {
			h.Vars = map[string]string{}
		}
		g := h.Groups
		if g == nil {
			g = []string{}
		}

		// owner fallback -> env or "unassigned"
		owner := strings.TrimSpace(h.Owner)
		if owner == "" {
			if def := common.Env("ROLEWARDEN_DEFAULT_OWNER", ""); def != "" {
				owner = def
			} else {
				owner = "unassigned"
			}
		}

		varsJSON, _ := json.Marshal(h.Vars)

		// double guard at SQL: never let NULL/"" through
		_, err := common.DB.Exec(ctx, `
			INSERT INTO hosts (name, addr, vars, "groups", owner, updated_at)
			VALUES ($1, $2, $3::jsonb, $4, COALESCE(NULLIF($5,''), 'unassigned'), now())
			ON CONFLICT (name) DO UPDATE
			SET addr       = EXCLUDED.addr,
			    vars       = EXCLUDED.vars,
			    "groups"   = EXCLUDED."groups",
			    owner      = COALESCE(NULLIF(EXCLUDED.owner,''), hosts.owner, 'unassigned'),
			    updated_at = now()
		`, h.Name, h.Addr, string(varsJSON), g, owner)
		if err != nil {
			return err
		}
	}
	return nil
}

const hostColumns = `id, name, addr, vars, "groups", owner, status, last_seen, updated_at`

func scanHost(row interface{ Scan(...any) error }) (HostRow, error) {
	var (
		h        HostRow
		varsJSON []byte
	)
	if err := row.Scan(&h.ID, &h.Name, &h.Addr, &varsJSON, &h.Groups, &h.Owner, &h.Status, &h.LastSeen, &h.UpdatedAt); err != nil {
		return HostRow{}, err
	}
	if len(varsJSON) > 0 {
		_ = json.Unmarshal(varsJSON, &h.Vars)
	}
	if h.Vars == nil {
		h.Vars = map[string]string{}
	}
	return h, nil
}

// GetHostByName fetches a single host record.
func GetHostByName(ctx context.Context, name string) (HostRow, error) {
	row := common.DB.QueryRow(ctx, `SELECT `+hostColumns+` FROM hosts WHERE name=$1`, name)
	return scanHost(row)
}

// ListHosts returns all hosts ordered by name.
func ListHosts(ctx context.Context) ([]HostRow, error) {
	rows, err := common.DB.Query(ctx, `SELECT `+hostColumns+` FROM hosts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HostRow
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetHostCount returns the number of known hosts.
func GetHostCount(ctx context.Context) (int, error) {
	var count int
	err := common.DB.QueryRow(ctx, `SELECT COUNT(*) FROM hosts`).Scan(&count)
	return count, err
}

// MarkHostStatus stamps the probe result and last_seen time on a host.
func MarkHostStatus(ctx context.Context, name, status string) error {
	_, err := common.DB.Exec(ctx, `
		UPDATE hosts SET status=$2, last_seen=now(), updated_at=now() WHERE name=$1
	`, name, status)
	return err
}

// database/stats.go
package database

import (
	"context"
	"time"

	"rolewarden/common"
)

// Stats is the aggregate view the dashboard endpoint serves.
type Stats struct {
	Hosts       int        `json:"hosts"`
	HostsUp     int        `json:"hosts_up"`
	Runs        int        `json:"runs"`
	RunsChanged int        `json:"runs_changed"`
	RunsFailed  int        `json:"runs_failed"`
	Runs24h     int        `json:"runs_24h"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
}

// GetStats gathers the aggregate counters in one round trip per table.
func GetStats(ctx context.Context) (Stats, error) {
	var s Stats

	err := common.DB.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'up') FROM hosts
	`).Scan(&s.Hosts, &s.HostsUp)
	if err != nil {
		return s, err
	}

	err = common.DB.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE changed),
		       COUNT(*) FILTER (WHERE failed),
		       COUNT(*) FILTER (WHERE started_at > now() - interval '24 hours'),
		       MAX(started_at)
		FROM reconcile_runs
	`).Scan(&s.Runs, &s.RunsChanged, &s.RunsFailed, &s.Runs24h, &s.LastRunAt)
	if err != nil {
		return s, err
	}

	return s, nil
}

// RoleActivity summarizes recent runs for one role on one host.
type RoleActivity struct {
	HostName  string     `json:"host_name"`
	Role      string     `json:"role"`
	Runs      int        `json:"runs"`
	Failed    int        `json:"failed"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

// GetRoleActivity lists the most recently reconciled host/role pairs.
func GetRoleActivity(ctx context.Context, limit int) ([]RoleActivity, error) {
	rows, err := common.DB.Query(ctx, `
		SELECT host_name, role,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE failed),
		       MAX(started_at)
		FROM reconcile_runs
		WHERE role <> ''
		GROUP BY host_name, role
		ORDER BY MAX(started_at) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoleActivity
	for rows.Next() {
		var a RoleActivity
		if err := rows.Scan(&a.HostName, &a.Role, &a.Runs, &a.Failed, &a.LastRunAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// database/db_runs.go
package database

import (
	"context"
	"encoding/json"
	"time"

	"rolewarden/common"
)

// RunRow is one reconciliation run, finished or not.
type RunRow struct {
	ID          string     `json:"id"`
	HostName    string     `json:"host_name"`
	Role        string     `json:"role"`
	Images      string     `json:"images"`
	Containers  string     `json:"containers"`
	CheckMode   bool       `json:"check_mode"`
	Changed     bool       `json:"changed"`
	Failed      bool       `json:"failed"`
	Msg         string     `json:"msg"`
	RequestedBy string     `json:"requested_by"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// RunLogRow is one primitive invocation within a run.
type RunLogRow struct {
	Seq       int            `json:"seq"`
	Primitive string         `json:"primitive"`
	Args      map[string]any `json:"args,omitempty"`
	Changed   bool           `json:"changed"`
	Failed    bool           `json:"failed"`
	Message   string         `json:"message,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateRun records the start of a run.
func CreateRun(ctx context.Context, id, hostName, role, images, containers string, checkMode bool, requestedBy string) error {
	_, err := common.DB.Exec(ctx, `
		INSERT INTO reconcile_runs (id, host_name, role, images, containers, check_mode, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, hostName, role, images, containers, checkMode, requestedBy)
	return err
}

// FinishRun stamps the outcome on a run.
func FinishRun(ctx context.Context, id string, changed, failed bool, msg string) error {
	_, err := common.DB.Exec(ctx, `
		UPDATE reconcile_runs
		SET changed=$2, failed=$3, msg=$4, finished_at=now()
		WHERE id=$1
	`, id, changed, failed, msg)
	return err
}

// AppendRunLog adds one primitive record to a run's audit trail.
func AppendRunLog(ctx context.Context, runID string, seq int, primitive string, args map[string]any, changed, failed bool, message string) error {
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, _ := json.Marshal(args)
	_, err := common.DB.Exec(ctx, `
		INSERT INTO run_logs (run_id, seq, primitive, args, changed, failed, message)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
	`, runID, seq, primitive, string(argsJSON), changed, failed, message)
	return err
}

const runColumns = `id, host_name, role, images, containers, check_mode, changed, failed, msg, requested_by, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (RunRow, error) {
	var r RunRow
	err := row.Scan(&r.ID, &r.HostName, &r.Role, &r.Images, &r.Containers, &r.CheckMode,
		&r.Changed, &r.Failed, &r.Msg, &r.RequestedBy, &r.StartedAt, &r.FinishedAt)
	return r, err
}

// GetRun fetches one run by id.
func GetRun(ctx context.Context, id string) (RunRow, error) {
	row := common.DB.QueryRow(ctx, `SELECT `+runColumns+` FROM reconcile_runs WHERE id=$1`, id)
	return scanRun(row)
}

// ListRuns returns runs newest first, optionally filtered by host and role.
func ListRuns(ctx context.Context, hostName, role string, limit, offset int) ([]RunRow, error) {
	rows, err := common.DB.Query(ctx, `
		SELECT `+runColumns+`
		FROM reconcile_runs
		WHERE ($1 = '' OR host_name = $1)
		  AND ($2 = '' OR role = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`, hostName, role, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRunCount counts runs under the same filter ListRuns applies, so
// listings can report a paging total.
func GetRunCount(ctx context.Context, hostName, role string) (int, error) {
	var count int
	err := common.DB.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM reconcile_runs
		WHERE ($1 = '' OR host_name = $1)
		  AND ($2 = '' OR role = $2)
	`, hostName, role).Scan(&count)
	return count, err
}

// GetRunLogs returns a run's audit trail in step order.
func GetRunLogs(ctx context.Context, runID string) ([]RunLogRow, error) {
	rows, err := common.DB.Query(ctx, `
		SELECT seq, primitive, args, changed, failed, message, created_at
		FROM run_logs
		WHERE run_id=$1
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunLogRow
	for rows.Next() {
		var (
			l        RunLogRow
			argsJSON []byte
		)
		if err := rows.Scan(&l.Seq, &l.Primitive, &argsJSON, &l.Changed, &l.Failed, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		if len(argsJSON) > 0 {
			_ = json.Unmarshal(argsJSON, &l.Args)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// IssueStore persists scan reports and the per-tenant latest pointer.
type IssueStore struct {
	db *sql.DB
}

func NewIssueStore(db *sql.DB) *IssueStore { return &IssueStore{db: db} }

// Save upserts the report row and advances integrity_latest in one transaction.
func (r *IssueStore) Save(ctx context.Context, rep *integrity.ScanReport) error {
	const upsertReport = `
INSERT INTO integrity_reports
 (id, tenant_id, started_at, finished_at, triggered_by,
  total_issues, critical, high, medium, low, errors, duration_ms,
  summary_json, report_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 total_issues=VALUES(total_issues),
 critical=VALUES(critical), high=VALUES(high), medium=VALUES(medium), low=VALUES(low), errors=VALUES(errors),
 summary_json=VALUES(summary_json),
 report_json=VALUES(report_json);`
	// report_id is assigned before finished_at so the comparison still sees the old value
	const moveLatest = `
INSERT INTO integrity_latest (tenant_id, report_id, finished_at)
VALUES (?,?,?)
ON DUPLICATE KEY UPDATE
 report_id=IF(VALUES(finished_at) >= finished_at, VALUES(report_id), report_id),
 finished_at=IF(VALUES(finished_at) >= finished_at, VALUES(finished_at), finished_at);`

	summary, err := json.Marshal(rep.Summary)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	finished := rep.FinishedAt.UTC()
	if rep.FinishedAt.IsZero() {
		finished = time.Now().UTC()
	}
	c := rep.Summary.BySeverity

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertReport,
		string(rep.ID), stringOrDash(rep.TenantID), rep.StartedAt.UTC(), finished, stringOrDash(rep.TriggeredBy),
		rep.Summary.TotalIssues, c.Critical, c.High, c.Medium, c.Low, c.Error, rep.Summary.DurationMS,
		summary, body,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, moveLatest, rep.TenantID, string(rep.ID), finished); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *IssueStore) Latest(ctx context.Context, tenantID string) (*integrity.ScanReport, error) {
	const q = `
SELECT rp.report_json
FROM integrity_latest l
JOIN integrity_reports rp ON rp.id = l.report_id
WHERE l.tenant_id=? LIMIT 1;`
	var body []byte
	err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rep integrity.ScanReport
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *IssueStore) History(ctx context.Context, tenantID string, limit int) ([]integrity.ScanHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	const q = `
SELECT id, tenant_id, started_at, finished_at, triggered_by, summary_json
FROM integrity_reports
WHERE tenant_id=?
ORDER BY finished_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []integrity.ScanHistoryEntry{}
	for rows.Next() {
		var e integrity.ScanHistoryEntry
		var id string
		var summary []byte
		if err := rows.Scan(&id, &e.TenantID, &e.StartedAt, &e.FinishedAt, &e.TriggeredBy, &summary); err != nil {
			return nil, err
		}
		e.ID = integrity.ReportID(id)
		if err := json.Unmarshal(summary, &e.Summary); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

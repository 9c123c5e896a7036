package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// AuditRepository writes one row per applied fix.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Record(ctx context.Context, e integrity.AuditEvent) error {
	const q = `
INSERT INTO integrity_audit_events
  (id, tenant_id, report_id, issue_id, rule_id, entity_type, entity_id, actor, before_json, after_json, recorded_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	before, err := jsonOrEmpty(e.Before)
	if err != nil {
		return err
	}
	after, err := jsonOrEmpty(e.After)
	if err != nil {
		return err
	}
	recorded := e.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	_, err = r.db.ExecContext(ctx, q,
		e.ID, stringOrDash(e.TenantID), stringOrDash(string(e.ReportID)), stringOrDash(e.IssueID),
		stringOrDash(e.RuleID), stringOrDash(e.EntityType), stringOrDash(e.EntityID), stringOrDash(e.Actor),
		before, after, recorded.UTC())
	return err
}

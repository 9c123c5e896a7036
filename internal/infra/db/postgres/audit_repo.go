package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

type AuditRepository struct{ db *sql.DB }

func NewAuditRepository(db *sql.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Record(ctx context.Context, e integrity.AuditEvent) error {
	const q = `
INSERT INTO integrity_audit_events
  (id, tenant_id, report_id, issue_id, rule_id, entity_type, entity_id, actor, before_json, after_json, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10::jsonb,$11)`
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
		string(before), string(after), recorded.UTC())
	return err
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenant_documents (
  tenant_id  TEXT NOT NULL,
  collection TEXT NOT NULL,
  id         TEXT NOT NULL,
  body       JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (tenant_id, collection, id)
)`,
	`CREATE TABLE IF NOT EXISTS integrity_reports (
  id           TEXT PRIMARY KEY,
  tenant_id    TEXT NOT NULL,
  started_at   TIMESTAMPTZ NOT NULL,
  finished_at  TIMESTAMPTZ NOT NULL,
  triggered_by TEXT NOT NULL,
  total_issues INT NOT NULL,
  critical     INT NOT NULL,
  high         INT NOT NULL,
  medium       INT NOT NULL,
  low          INT NOT NULL,
  errors       INT NOT NULL,
  duration_ms  BIGINT NOT NULL,
  summary_json JSONB NOT NULL,
  report_json  JSONB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_tenant_finished ON integrity_reports (tenant_id, finished_at DESC)`,
	`CREATE TABLE IF NOT EXISTS integrity_latest (
  tenant_id   TEXT PRIMARY KEY,
  report_id   TEXT NOT NULL,
  finished_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS integrity_audit_events (
  id          TEXT PRIMARY KEY,
  tenant_id   TEXT NOT NULL,
  report_id   TEXT NOT NULL,
  issue_id    TEXT NOT NULL,
  rule_id     TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id   TEXT NOT NULL,
  actor       TEXT NOT NULL,
  before_json JSONB NOT NULL,
  after_json  JSONB NOT NULL,
  recorded_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_tenant ON integrity_audit_events (tenant_id, recorded_at DESC)`,
}

// Migrate creates the integrity tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

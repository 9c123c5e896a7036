package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
  tenant_id  VARCHAR(64)  NOT NULL,
  collection VARCHAR(64)  NOT NULL,
  id         VARCHAR(128) NOT NULL,
  body       JSON         NOT NULL,
  updated_at DATETIME(6)  NOT NULL,
  PRIMARY KEY (tenant_id, collection, id)
)`,
	`CREATE TABLE IF NOT EXISTS integrity_reports (
  id           VARCHAR(64) NOT NULL PRIMARY KEY,
  tenant_id    VARCHAR(64) NOT NULL,
  started_at   DATETIME(6) NOT NULL,
  finished_at  DATETIME(6) NOT NULL,
  triggered_by VARCHAR(128) NOT NULL,
  total_issues INT NOT NULL,
  critical     INT NOT NULL,
  high         INT NOT NULL,
  medium       INT NOT NULL,
  low          INT NOT NULL,
  errors       INT NOT NULL,
  duration_ms  BIGINT NOT NULL,
  summary_json JSON NOT NULL,
  report_json  JSON NOT NULL,
  KEY idx_reports_tenant_finished (tenant_id, finished_at)
)`,
	`CREATE TABLE IF NOT EXISTS integrity_latest (
  tenant_id   VARCHAR(64) NOT NULL PRIMARY KEY,
  report_id   VARCHAR(64) NOT NULL,
  finished_at DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS integrity_audit_events (
  id          VARCHAR(64)  NOT NULL PRIMARY KEY,
  tenant_id   VARCHAR(64)  NOT NULL,
  report_id   VARCHAR(64)  NOT NULL,
  issue_id    VARCHAR(64)  NOT NULL,
  rule_id     VARCHAR(64)  NOT NULL,
  entity_type VARCHAR(64)  NOT NULL,
  entity_id   VARCHAR(128) NOT NULL,
  actor       VARCHAR(128) NOT NULL,
  before_json JSON NOT NULL,
  after_json  JSON NOT NULL,
  recorded_at DATETIME(6) NOT NULL,
  KEY idx_audit_tenant (tenant_id, recorded_at)
)`,
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

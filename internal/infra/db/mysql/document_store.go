package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// DocumentStore serves tenant collections stored as JSON rows in tenant_documents.
type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore { return &DocumentStore{db: db} }

// ForTenant implements integrity.DataResolver.
func (s *DocumentStore) ForTenant(_ context.Context, tenantID string) (integrity.TenantDataAccess, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("mysql: empty tenant id")
	}
	return &tenantDocs{db: s.db, tenant: tenantID}, nil
}

type tenantDocs struct {
	db     *sql.DB
	tenant string
}

// List pushes an id condition down to SQL; every other condition is matched in Go.
func (t *tenantDocs) List(ctx context.Context, collection string, filter integrity.Filter) ([]integrity.Document, error) {
	q := `SELECT id, body FROM tenant_documents WHERE tenant_id=? AND collection=?`
	args := []any{t.tenant, collection}
	if id, ok := filter["id"].(string); ok {
		q += ` AND id=?`
		args = append(args, id)
	}
	q += ` ORDER BY id`

	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []integrity.Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: decode body: %w", collection, id, err)
		}
		if _, ok := doc["id"]; !ok {
			doc["id"] = id
		}
		if filter.Match(doc) {
			out = append(out, doc)
		}
	}
	return out, rows.Err()
}

// Patch is a read-modify-write under a row lock.
func (t *tenantDocs) Patch(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var body []byte
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM tenant_documents WHERE tenant_id=? AND collection=? AND id=? FOR UPDATE`,
		t.tenant, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, integrity.ErrDocumentNotFound)
	}
	if err != nil {
		return err
	}
	doc, err := decodeDocument(body)
	if err != nil {
		return fmt.Errorf("%s/%s: decode body: %w", collection, id, err)
	}
	for k, v := range fields {
		doc[k] = v
	}
	updated, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_documents SET body=?, updated_at=? WHERE tenant_id=? AND collection=? AND id=?`,
		updated, time.Now().UTC(), t.tenant, collection, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (t *tenantDocs) Delete(ctx context.Context, collection, id string) error {
	res, err := t.db.ExecContext(ctx,
		`DELETE FROM tenant_documents WHERE tenant_id=? AND collection=? AND id=?`,
		t.tenant, collection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, integrity.ErrDocumentNotFound)
	}
	return nil
}

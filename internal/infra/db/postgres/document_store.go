package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// DocumentStore serves tenant collections stored as JSONB rows in tenant_documents.
type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore { return &DocumentStore{db: db} }

func (s *DocumentStore) ForTenant(_ context.Context, tenantID string) (integrity.TenantDataAccess, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("postgres: empty tenant id")
	}
	return &tenantDocs{db: s.db, tenant: tenantID}, nil
}

type tenantDocs struct {
	db     *sql.DB
	tenant string
}

func (t *tenantDocs) List(ctx context.Context, collection string, filter integrity.Filter) ([]integrity.Document, error) {
	q := `SELECT id, body FROM tenant_documents WHERE tenant_id=$1 AND collection=$2`
	args := []any{t.tenant, collection}
	if id, ok := filter["id"].(string); ok {
		q += ` AND id=$3`
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

// Patch merges fields into the stored body with jsonb concatenation; nil becomes JSON null.
func (t *tenantDocs) Patch(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	var touched string
	err = t.db.QueryRowContext(ctx, `
UPDATE tenant_documents
SET body = body || $4::jsonb, updated_at = $5
WHERE tenant_id=$1 AND collection=$2 AND id=$3
RETURNING id`,
		t.tenant, collection, id, string(patch), time.Now().UTC()).Scan(&touched)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, integrity.ErrDocumentNotFound)
	}
	return err
}

func (t *tenantDocs) Delete(ctx context.Context, collection, id string) error {
	res, err := t.db.ExecContext(ctx,
		`DELETE FROM tenant_documents WHERE tenant_id=$1 AND collection=$2 AND id=$3`,
		t.tenant, collection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, integrity.ErrDocumentNotFound)
	}
	return nil
}

package integrity

import (
	"context"
	"errors"
	"time"
)

// ErrDocumentNotFound is returned by Patch/Delete when the id does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// DataReader is the read-only half of a tenant data handle; rule checks only get this.
type DataReader interface {
	List(ctx context.Context, collection string, filter Filter) ([]Document, error)
}

// TenantDataAccess port, always bound to one tenant.
type TenantDataAccess interface {
	DataReader
	// Patch sets top-level fields; a nil value stores JSON null.
	Patch(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// DataResolver routes a tenant id to its data handle.
type DataResolver interface {
	ForTenant(ctx context.Context, tenantID string) (TenantDataAccess, error)
}

// IssueStore port (interface untuk persistence report)
type IssueStore interface {
	// Latest returns nil, nil when the tenant has never been scanned.
	Latest(ctx context.Context, tenantID string) (*ScanReport, error)
	History(ctx context.Context, tenantID string, limit int) ([]ScanHistoryEntry, error)
	Save(ctx context.Context, report *ScanReport) error
}

// AuditSink port, one Record per applied fix.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// ReportArchive keeps an immutable copy of every finished report outside the database.
type ReportArchive interface {
	Put(ctx context.Context, report *ScanReport) (string, error)
}

// Clock abstraction supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// IDGenerator issues report, issue and audit ids.
type IDGenerator interface {
	New() string
}

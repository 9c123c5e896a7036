// Package rules holds the production consistency rules for tenant CRM/ERP data.
// Entity types are the tenant collection names, so a fixer can patch
// issue.EntityType directly.
package rules

import (
	"context"
	"fmt"
	"math"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

const (
	CollectionInvoices   = "flooring_invoices"
	CollectionQuotes     = "flooring_quotes"
	CollectionCustomers  = "flooring_customers"
	CollectionProducts   = "flooring_products"
	CollectionContacts   = "contacts"
	CollectionProjects   = "projects"
	CollectionTasks      = "tasks"
	CollectionLeads      = "leads"
	CollectionStock      = "wf_inventory_stock"
	CollectionLedger     = "wf_stock_ledger"
	CollectionWarehouses = "wf_warehouses"
	CollectionUsers      = "users"
	CollectionTenant     = "tenant_profile"
)

// moneyTolerance allows for rounding on stored currency values (one paisa).
const moneyTolerance = 0.01

// PrimaryCollections hold business records that a fixer must never delete.
var PrimaryCollections = map[string]bool{
	CollectionInvoices:  true,
	CollectionQuotes:    true,
	CollectionCustomers: true,
	CollectionProducts:  true,
	CollectionContacts:  true,
	CollectionProjects:  true,
	CollectionTasks:     true,
	CollectionLeads:     true,
}

// idSet collects the ids of every document in the given collections.
func idSet(ctx context.Context, data integrity.DataReader, collections ...string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for _, c := range collections {
		docs, err := data.List(ctx, c, nil)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", c, err)
		}
		for _, d := range docs {
			if id := d.ID(); id != "" {
				set[id] = struct{}{}
			}
		}
	}
	return set, nil
}

// listScoped lists collection honoring the scope; out-of-scope collections yield nothing.
func listScoped(ctx context.Context, data integrity.DataReader, collection string, scope integrity.Scope) ([]integrity.Document, error) {
	if !scope.Covers(collection) {
		return nil, nil
	}
	docs, err := data.List(ctx, collection, scope.Filter())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

// loadOne re-reads the current state of the entity an issue points at.
func loadOne(ctx context.Context, data integrity.DataReader, collection, id string) (integrity.Document, error) {
	docs, err := data.List(ctx, collection, integrity.ByID(id))
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", collection, id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("load %s/%s: %w", collection, id, integrity.ErrDocumentNotFound)
	}
	return docs[0], nil
}

// patch applies fields and returns the before/after snapshot for the audit trail.
func patch(ctx context.Context, data integrity.TenantDataAccess, collection string, doc integrity.Document, fields map[string]any) (integrity.FixResult, error) {
	before := make(map[string]any, len(fields))
	for k := range fields {
		before[k] = doc[k]
	}
	if err := data.Patch(ctx, collection, doc.ID(), fields); err != nil {
		return integrity.FixResult{}, fmt.Errorf("patch %s/%s: %w", collection, doc.ID(), err)
	}
	return integrity.FixResult{Before: before, After: fields}, nil
}

// round2 keeps currency values at two decimals so recomputed totals compare cleanly.
func round2(f float64) float64 { return math.Round(f*100) / 100 }

func differs(a, b float64) bool { return math.Abs(a-b) > moneyTolerance }

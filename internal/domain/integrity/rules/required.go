package rules

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// ProjectMissingNameRule flags projects that carry neither a name nor a project number.
type ProjectMissingNameRule struct{}

func (ProjectMissingNameRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "project-missing-name",
		Title:      "Project has neither name nor project number",
		Category:   integrity.CategoryRequired,
		Severity:   integrity.SeverityHigh,
		EntityType: CollectionProjects,
	}
}

func (ProjectMissingNameRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	projects, err := listScoped(ctx, data, CollectionProjects, scope)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, p := range projects {
		if p.ID() == "" {
			continue
		}
		_, hasName := p.String("name")
		_, hasNumber := p.String("projectNumber")
		if hasName || hasNumber {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionProjects,
			EntityID:    p.ID(),
			Description: fmt.Sprintf("Project %s missing name and projectNumber", p.ID()),
		})
	}
	return out, nil
}

// InvoiceMissingNumberRule flags invoices without an invoice number. Numbers come from
// the tenant's billing sequence, which this service does not own, so there is no fixer.
type InvoiceMissingNumberRule struct{}

func (InvoiceMissingNumberRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "invoice-missing-number",
		Title:      "Invoice has no invoice number",
		Category:   integrity.CategoryRequired,
		Severity:   integrity.SeverityCritical,
		EntityType: CollectionInvoices,
	}
}

func (InvoiceMissingNumberRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	invoices, err := listScoped(ctx, data, CollectionInvoices, scope)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, inv := range invoices {
		if inv.ID() == "" {
			continue
		}
		if _, ok := inv.String("invoiceNumber"); ok {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionInvoices,
			EntityID:    inv.ID(),
			Description: fmt.Sprintf("Invoice %s missing invoiceNumber", inv.ID()),
		})
	}
	return out, nil
}

// InvoiceMissingItemsRule flags invoices with no line items. InvoiceSubtotalRule has
// nothing to recompute for these, so they would otherwise go unreported.
type InvoiceMissingItemsRule struct{}

func (InvoiceMissingItemsRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "invoice-missing-items",
		Title:      "Invoice has no line items",
		Category:   integrity.CategoryRequired,
		Severity:   integrity.SeverityHigh,
		EntityType: CollectionInvoices,
	}
}

func (InvoiceMissingItemsRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	invoices, err := listScoped(ctx, data, CollectionInvoices, scope)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, inv := range invoices {
		if inv.ID() == "" || len(inv.Items("items")) > 0 {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionInvoices,
			EntityID:    inv.ID(),
			Description: fmt.Sprintf("Invoice %s has no line items", inv.Label("invoiceNumber")),
		})
	}
	return out, nil
}

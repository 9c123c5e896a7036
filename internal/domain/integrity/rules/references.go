package rules

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// refCheck describes a foreign key from one collection into one or more others.
type refCheck struct {
	collection string
	field      string
	targets    []string
	noun       string
	labelKeys  []string
}

func (c refCheck) run(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	docs, err := listScoped(ctx, data, c.collection, scope)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	valid, err := idSet(ctx, data, c.targets...)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, d := range docs {
		ref, ok := d.String(c.field)
		if !ok || d.ID() == "" {
			continue
		}
		if _, exists := valid[ref]; exists {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  c.collection,
			EntityID:    d.ID(),
			Description: fmt.Sprintf("%s %s references non-existent %s: %s", c.noun, d.Label(c.labelKeys...), c.field, ref),
			Evidence:    map[string]any{c.field: ref},
		})
	}
	return out, nil
}

// OrphanTaskProjectRule flags tasks linked to a deleted project.
type OrphanTaskProjectRule struct{}

var taskProjectRef = refCheck{
	collection: CollectionTasks,
	field:      "projectId",
	targets:    []string{CollectionProjects},
	noun:       "Task",
	labelKeys:  []string{"title"},
}

func (OrphanTaskProjectRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "orphan-task-project",
		Title:      "Task references a missing project",
		Category:   integrity.CategoryReferential,
		Severity:   integrity.SeverityMedium,
		EntityType: CollectionTasks,
	}
}

func (OrphanTaskProjectRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	return taskProjectRef.run(ctx, data, scope)
}

// Fix unlinks the task from the missing project; the task stays.
func (OrphanTaskProjectRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	task, err := loadOne(ctx, data, CollectionTasks, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	return patch(ctx, data, CollectionTasks, task, map[string]any{"projectId": nil})
}

// OrphanInvoiceProjectRule flags invoices linked to a deleted project. Relinking needs a
// human decision, so there is no fixer.
type OrphanInvoiceProjectRule struct{}

func (OrphanInvoiceProjectRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "orphan-invoice-project",
		Title:      "Invoice references a missing project",
		Category:   integrity.CategoryReferential,
		Severity:   integrity.SeverityCritical,
		EntityType: CollectionInvoices,
	}
}

func (OrphanInvoiceProjectRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	return refCheck{
		collection: CollectionInvoices,
		field:      "projectId",
		targets:    []string{CollectionProjects},
		noun:       "Invoice",
		labelKeys:  []string{"invoiceNumber"},
	}.run(ctx, data, scope)
}

// OrphanQuoteProjectRule flags quotes linked to a deleted project. Like invoices, the
// quote has to be relinked by hand.
type OrphanQuoteProjectRule struct{}

func (OrphanQuoteProjectRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "orphan-quote-project",
		Title:      "Quote references a missing project",
		Category:   integrity.CategoryReferential,
		Severity:   integrity.SeverityHigh,
		EntityType: CollectionQuotes,
	}
}

func (OrphanQuoteProjectRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	return refCheck{
		collection: CollectionQuotes,
		field:      "projectId",
		targets:    []string{CollectionProjects},
		noun:       "Quote",
		labelKeys:  []string{"quotationNumber"},
	}.run(ctx, data, scope)
}

// QuoteMissingCustomerRule flags quotes whose customer is neither a customer nor a contact.
type QuoteMissingCustomerRule struct{}

func (QuoteMissingCustomerRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "quote-missing-customer",
		Title:      "Quote references a missing customer",
		Category:   integrity.CategoryReferential,
		Severity:   integrity.SeverityMedium,
		EntityType: CollectionQuotes,
	}
}

func (QuoteMissingCustomerRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	return refCheck{
		collection: CollectionQuotes,
		field:      "customerId",
		targets:    []string{CollectionCustomers, CollectionContacts},
		noun:       "Quote",
		labelKeys:  []string{"quotationNumber"},
	}.run(ctx, data, scope)
}

// InvoiceMissingCustomerRule is the invoice variant of QuoteMissingCustomerRule.
type InvoiceMissingCustomerRule struct{}

func (InvoiceMissingCustomerRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "invoice-missing-customer",
		Title:      "Invoice references a missing customer",
		Category:   integrity.CategoryReferential,
		Severity:   integrity.SeverityHigh,
		EntityType: CollectionInvoices,
	}
}

func (InvoiceMissingCustomerRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	return refCheck{
		collection: CollectionInvoices,
		field:      "customerId",
		targets:    []string{CollectionCustomers, CollectionContacts},
		noun:       "Invoice",
		labelKeys:  []string{"invoiceNumber"},
	}.run(ctx, data, scope)
}

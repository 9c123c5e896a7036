package rules

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

func invoiceTotal(d integrity.Document) (float64, string, bool) {
	return d.FirstNumber("totalAmount", "grandTotal")
}

// InvoiceOverpaidRule flags invoices whose paid amount exceeds their total.
type InvoiceOverpaidRule struct{}

func (InvoiceOverpaidRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "invoice-overpaid",
		Title:      "Invoice paid amount exceeds total",
		Category:   integrity.CategoryNumeric,
		Severity:   integrity.SeverityHigh,
		EntityType: CollectionInvoices,
	}
}

func (InvoiceOverpaidRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	invoices, err := listScoped(ctx, data, CollectionInvoices, scope)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, inv := range invoices {
		total, field, ok := invoiceTotal(inv)
		if !ok || inv.ID() == "" {
			continue
		}
		paid, ok := inv.Number("paidAmount")
		if !ok || paid <= total {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionInvoices,
			EntityID:    inv.ID(),
			Description: fmt.Sprintf("Invoice %s overpayment: paid %.2f, total %.2f", inv.Label("invoiceNumber"), paid, total),
			Evidence:    map[string]any{"paidAmount": paid, field: total},
		})
	}
	return out, nil
}

// Fix clamps paidAmount to the invoice total as it is stored now.
func (InvoiceOverpaidRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	inv, err := loadOne(ctx, data, CollectionInvoices, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	total, _, ok := invoiceTotal(inv)
	if !ok {
		return integrity.FixResult{}, fmt.Errorf("invoice %s has no total to clamp to", issue.EntityID)
	}
	return patch(ctx, data, CollectionInvoices, inv, map[string]any{"paidAmount": total})
}

// InvoiceBalanceRule flags a cached balance that disagrees with total - paid.
type InvoiceBalanceRule struct{}

func (InvoiceBalanceRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "invoice-balance-mismatch",
		Title:      "Invoice balance does not match total minus paid",
		Category:   integrity.CategoryAggregate,
		Severity:   integrity.SeverityMedium,
		EntityType: CollectionInvoices,
	}
}

func expectedBalance(inv integrity.Document) (float64, bool) {
	total, _, ok := invoiceTotal(inv)
	if !ok {
		return 0, false
	}
	paid, _ := inv.Number("paidAmount")
	return round2(total - paid), true
}

func (InvoiceBalanceRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	invoices, err := listScoped(ctx, data, CollectionInvoices, scope)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, inv := range invoices {
		stored, ok := inv.Number("balance")
		if !ok || inv.ID() == "" {
			continue
		}
		want, ok := expectedBalance(inv)
		if !ok || !differs(stored, want) {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionInvoices,
			EntityID:    inv.ID(),
			Description: fmt.Sprintf("Invoice %s balance mismatch: stored %.2f, expected %.2f", inv.Label("invoiceNumber"), stored, want),
			Evidence:    map[string]any{"balance": stored, "expected": want},
		})
	}
	return out, nil
}

func (InvoiceBalanceRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	inv, err := loadOne(ctx, data, CollectionInvoices, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	want, ok := expectedBalance(inv)
	if !ok {
		return integrity.FixResult{}, fmt.Errorf("invoice %s has no total to derive balance from", issue.EntityID)
	}
	return patch(ctx, data, CollectionInvoices, inv, map[string]any{"balance": want})
}

// InvoiceSubtotalRule recomputes the line-item sum and compares it to the cached subtotal.
type InvoiceSubtotalRule struct{}

func (InvoiceSubtotalRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "invoice-subtotal-mismatch",
		Title:      "Invoice subtotal does not match line items",
		Category:   integrity.CategoryAggregate,
		Severity:   integrity.SeverityCritical,
		EntityType: CollectionInvoices,
	}
}

// lineItemSubtotal returns false when the invoice carries no line items at all.
func lineItemSubtotal(inv integrity.Document) (float64, bool) {
	items := inv.Items("items")
	if len(items) == 0 {
		return 0, false
	}
	var sum float64
	for _, it := range items {
		qty, _ := it.Number("quantity")
		rate, _, _ := it.FirstNumber("rate", "unitPrice")
		sum += qty * rate
	}
	return round2(sum), true
}

func (InvoiceSubtotalRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	invoices, err := listScoped(ctx, data, CollectionInvoices, scope)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, inv := range invoices {
		calc, ok := lineItemSubtotal(inv)
		if !ok || inv.ID() == "" {
			continue
		}
		stored, _ := inv.Number("subtotal")
		if !differs(calc, stored) {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionInvoices,
			EntityID:    inv.ID(),
			Description: fmt.Sprintf("Invoice %s subtotal mismatch: stored %.2f, calculated %.2f", inv.Label("invoiceNumber"), stored, calc),
			Evidence:    map[string]any{"stored": stored, "calculated": calc, "difference": round2(calc - stored)},
		})
	}
	return out, nil
}

func (InvoiceSubtotalRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	inv, err := loadOne(ctx, data, CollectionInvoices, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	calc, ok := lineItemSubtotal(inv)
	if !ok {
		return integrity.FixResult{}, fmt.Errorf("invoice %s has no line items", issue.EntityID)
	}
	return patch(ctx, data, CollectionInvoices, inv, map[string]any{"subtotal": calc})
}

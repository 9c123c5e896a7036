package rules

import "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"

// Default builds the production rule table. Order is the order issues appear in a report.
func Default() *integrity.Registry {
	return integrity.MustRegistry(
		InvoiceOverpaidRule{},
		InvoiceBalanceRule{},
		InvoiceSubtotalRule{},
		InvoiceMissingCustomerRule{},
		InvoiceMissingNumberRule{},
		InvoiceMissingItemsRule{},
		OrphanInvoiceProjectRule{},
		OrphanQuoteProjectRule{},
		QuoteMissingCustomerRule{},
		OrphanTaskProjectRule{},
		NegativeStockRule{},
		OrphanProductRefRule{},
		OrphanWarehouseRefRule{},
		InvalidStatusRule{},
		ProjectMissingNameRule{},
		TenantUserCountRule{},
		DuplicateLeadContactRule{},
		LeadMissingContactRule{},
	)
}

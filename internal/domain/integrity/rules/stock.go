package rules

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// NegativeStockRule flags stock rows with a quantity below zero.
type NegativeStockRule struct{}

func (NegativeStockRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "negative-stock",
		Title:      "Stock quantity is negative",
		Category:   integrity.CategoryNumeric,
		Severity:   integrity.SeverityCritical,
		EntityType: CollectionStock,
	}
}

func stockQuantity(d integrity.Document) (float64, string, bool) {
	return d.FirstNumber("quantity", "stockQuantity")
}

func (NegativeStockRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	stock, err := listScoped(ctx, data, CollectionStock, scope)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, item := range stock {
		qty, field, ok := stockQuantity(item)
		if !ok || qty >= 0 || item.ID() == "" {
			continue
		}
		productID, _ := item.String("productId")
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionStock,
			EntityID:    item.ID(),
			Description: fmt.Sprintf("Negative stock for %s: %g", item.Label("productName", "sku", "productId"), qty),
			Evidence:    map[string]any{field: qty, "productId": productID},
		})
	}
	return out, nil
}

// Fix clamps the quantity to zero and marks the row for a manual stock count.
func (NegativeStockRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	item, err := loadOne(ctx, data, CollectionStock, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	_, field, ok := stockQuantity(item)
	if !ok {
		return integrity.FixResult{}, fmt.Errorf("stock %s has no quantity field", issue.EntityID)
	}
	return patch(ctx, data, CollectionStock, item, map[string]any{field: 0.0, "needsReview": true})
}

// OrphanProductRefRule flags stock rows pointing at a product that no longer exists.
type OrphanProductRefRule struct{}

func (OrphanProductRefRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "orphan-product-ref",
		Title:      "Stock references a missing product",
		Category:   integrity.CategoryReferential,
		Severity:   integrity.SeverityHigh,
		EntityType: CollectionStock,
	}
}

func (OrphanProductRefRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	stock, err := listScoped(ctx, data, CollectionStock, scope)
	if err != nil || len(stock) == 0 {
		return nil, err
	}
	products, err := idSet(ctx, data, CollectionProducts)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, item := range stock {
		productID, ok := item.String("productId")
		if !ok || item.ID() == "" {
			continue
		}
		if _, exists := products[productID]; exists {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionStock,
			EntityID:    item.ID(),
			Description: fmt.Sprintf("Stock %s references non-existent product: %s", item.Label("sku"), productID),
			Evidence:    map[string]any{"productId": productID},
		})
	}
	return out, nil
}

// Fix drops the dangling reference and archives the stock row; the row itself is kept.
func (OrphanProductRefRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	item, err := loadOne(ctx, data, CollectionStock, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	return patch(ctx, data, CollectionStock, item, map[string]any{"productId": nil, "archived": true})
}

// OrphanWarehouseRefRule flags stock ledger movements booked against a missing warehouse.
type OrphanWarehouseRefRule struct{}

func (OrphanWarehouseRefRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "orphan-warehouse-ref",
		Title:      "Stock movement references a missing warehouse",
		Category:   integrity.CategoryReferential,
		Severity:   integrity.SeverityMedium,
		EntityType: CollectionLedger,
	}
}

func (OrphanWarehouseRefRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	moves, err := listScoped(ctx, data, CollectionLedger, scope)
	if err != nil || len(moves) == 0 {
		return nil, err
	}
	warehouses, err := idSet(ctx, data, CollectionWarehouses)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, mv := range moves {
		whID, ok := mv.String("warehouseId")
		if !ok || mv.ID() == "" {
			continue
		}
		if _, exists := warehouses[whID]; exists {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionLedger,
			EntityID:    mv.ID(),
			Description: fmt.Sprintf("Stock movement %s references non-existent warehouse: %s", mv.Label("referenceNumber"), whID),
			Evidence:    map[string]any{"warehouseId": whID},
		})
	}
	return out, nil
}

func (OrphanWarehouseRefRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	mv, err := loadOne(ctx, data, CollectionLedger, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	return patch(ctx, data, CollectionLedger, mv, map[string]any{"warehouseId": nil, "needsReview": true})
}

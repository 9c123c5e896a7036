package rules

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// TenantUserCountRule compares the cached userCount on the tenant profile with the
// number of active users.
type TenantUserCountRule struct{}

func (TenantUserCountRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "tenant-user-count",
		Title:      "Cached user count is stale",
		Category:   integrity.CategoryAggregate,
		Severity:   integrity.SeverityLow,
		EntityType: CollectionTenant,
	}
}

// activeUsers counts users not explicitly deactivated.
func activeUsers(ctx context.Context, data integrity.DataReader) (int, error) {
	users, err := data.List(ctx, CollectionUsers, nil)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", CollectionUsers, err)
	}
	n := 0
	for _, u := range users {
		if active, ok := u.Bool("active"); ok && !active {
			continue
		}
		n++
	}
	return n, nil
}

func (TenantUserCountRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	profiles, err := listScoped(ctx, data, CollectionTenant, scope)
	if err != nil || len(profiles) == 0 {
		return nil, err
	}
	live, err := activeUsers(ctx, data)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, p := range profiles {
		cached, ok := p.Number("userCount")
		if !ok || p.ID() == "" || cached == float64(live) {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionTenant,
			EntityID:    p.ID(),
			Description: fmt.Sprintf("Tenant user count is %g but %d active users exist", cached, live),
			Evidence:    map[string]any{"userCount": cached, "activeUsers": live},
		})
	}
	return out, nil
}

func (TenantUserCountRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	p, err := loadOne(ctx, data, CollectionTenant, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	live, err := activeUsers(ctx, data)
	if err != nil {
		return integrity.FixResult{}, err
	}
	return patch(ctx, data, CollectionTenant, p, map[string]any{"userCount": live})
}

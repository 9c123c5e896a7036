package rules

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// DuplicateLeadContactRule groups leads by email and by phone. Merging leads is a
// business decision, so there is no fixer.
type DuplicateLeadContactRule struct{}

func (DuplicateLeadContactRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "duplicate-lead-contact",
		Title:      "Several leads share the same email or phone",
		Category:   integrity.CategoryDuplicate,
		Severity:   integrity.SeverityMedium,
		EntityType: CollectionLeads,
	}
}

func (DuplicateLeadContactRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	if !scope.Covers(CollectionLeads) {
		return nil, nil
	}
	// duplicates are only visible across the whole collection
	leads, err := data.List(ctx, CollectionLeads, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", CollectionLeads, err)
	}
	var out []integrity.IssueCandidate
	for _, key := range []string{"email", "phone"} {
		groups := make(map[string][]string)
		var order []string
		for _, l := range leads {
			v, ok := l.String(key)
			if !ok || l.ID() == "" {
				continue
			}
			v = strings.ToLower(strings.TrimSpace(v))
			if _, seen := groups[v]; !seen {
				order = append(order, v)
			}
			groups[v] = append(groups[v], l.ID())
		}
		for _, v := range order {
			ids := groups[v]
			if len(ids) < 2 {
				continue
			}
			if !scope.Full() && !slices.Contains(ids, scope.EntityID) {
				continue
			}
			out = append(out, integrity.IssueCandidate{
				EntityType:  CollectionLeads,
				EntityID:    ids[0],
				Description: fmt.Sprintf("Duplicate leads with %s: %s (%d records)", key, v, len(ids)),
				Evidence:    map[string]any{key: v, "duplicateIds": ids},
			})
		}
	}
	return out, nil
}

// LeadMissingContactRule flags leads with no way to reach them.
type LeadMissingContactRule struct{}

func (LeadMissingContactRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:         "lead-missing-contact",
		Title:      "Lead has neither email nor phone",
		Category:   integrity.CategoryRequired,
		Severity:   integrity.SeverityHigh,
		EntityType: CollectionLeads,
	}
}

func (LeadMissingContactRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	leads, err := listScoped(ctx, data, CollectionLeads, scope)
	if err != nil {
		return nil, err
	}
	var out []integrity.IssueCandidate
	for _, l := range leads {
		if l.ID() == "" {
			continue
		}
		_, hasEmail := l.String("email")
		_, hasPhone := l.String("phone")
		if hasEmail || hasPhone {
			continue
		}
		out = append(out, integrity.IssueCandidate{
			EntityType:  CollectionLeads,
			EntityID:    l.ID(),
			Description: fmt.Sprintf("Lead %s missing both email and phone", l.Label("name")),
		})
	}
	return out, nil
}

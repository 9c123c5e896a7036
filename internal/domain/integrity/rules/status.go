package rules

import (
	"context"
	"fmt"
	"slices"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

type statusSet struct {
	valid    []string
	fallback string
	noun     string
	label    string
}

// allowedStatuses per collection; fallback is where a bad status is reset to.
var allowedStatuses = map[string]statusSet{
	CollectionLeads: {
		valid:    []string{"new", "contacted", "qualified", "proposal", "negotiation", "won", "lost"},
		fallback: "new",
		noun:     "Lead",
		label:    "name",
	},
	CollectionProjects: {
		valid:    []string{"planning", "in_progress", "on_hold", "review", "completed", "cancelled", "archived"},
		fallback: "planning",
		noun:     "Project",
		label:    "name",
	},
	CollectionInvoices: {
		valid:    []string{"draft", "sent", "partial", "paid", "overdue", "cancelled"},
		fallback: "draft",
		noun:     "Invoice",
		label:    "invoiceNumber",
	},
}

// statusOrder keeps map iteration out of the issue order.
var statusOrder = []string{CollectionLeads, CollectionProjects, CollectionInvoices}

// InvalidStatusRule flags records whose status is outside their state machine.
type InvalidStatusRule struct{}

func (InvalidStatusRule) Meta() integrity.RuleMeta {
	return integrity.RuleMeta{
		ID:       "invalid-status",
		Title:    "Record has a status outside its lifecycle",
		Category: integrity.CategoryState,
		Severity: integrity.SeverityHigh,
	}
}

func (InvalidStatusRule) Check(ctx context.Context, data integrity.DataReader, scope integrity.Scope) ([]integrity.IssueCandidate, error) {
	var out []integrity.IssueCandidate
	for _, coll := range statusOrder {
		set := allowedStatuses[coll]
		docs, err := listScoped(ctx, data, coll, scope)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			status, ok := d.String("status")
			if !ok || d.ID() == "" || slices.Contains(set.valid, status) {
				continue
			}
			out = append(out, integrity.IssueCandidate{
				EntityType:  coll,
				EntityID:    d.ID(),
				Description: fmt.Sprintf("%s %s has invalid status: %s", set.noun, d.Label(set.label), status),
				Evidence:    map[string]any{"status": status, "validStatuses": set.valid},
			})
		}
	}
	return out, nil
}

// Fix resets the status to the collection's initial state.
func (InvalidStatusRule) Fix(ctx context.Context, data integrity.TenantDataAccess, issue integrity.Issue) (integrity.FixResult, error) {
	set, ok := allowedStatuses[issue.EntityType]
	if !ok {
		return integrity.FixResult{}, fmt.Errorf("no default status for %s", issue.EntityType)
	}
	d, err := loadOne(ctx, data, issue.EntityType, issue.EntityID)
	if err != nil {
		return integrity.FixResult{}, err
	}
	return patch(ctx, data, issue.EntityType, d, map[string]any{"status": set.fallback})
}

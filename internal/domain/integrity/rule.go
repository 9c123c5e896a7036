package integrity

import "context"

// RuleMeta describes a registered rule. ID is unique within a registry.
type RuleMeta struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	EntityType string   `json:"entityType"`
}

// Scope narrows a check. An empty EntityID means the whole tenant.
// EntityType, when set, lets rules spanning several collections skip the others.
type Scope struct {
	EntityType string
	EntityID   string
}

// Full reports whether the scope covers the whole tenant.
func (s Scope) Full() bool { return s.EntityID == "" }

// Covers reports whether entityType is in scope.
func (s Scope) Covers(entityType string) bool {
	return s.EntityType == "" || s.EntityType == entityType
}

// Filter returns the list filter for the primary collection of a rule.
func (s Scope) Filter() Filter {
	if s.Full() {
		return nil
	}
	return ByID(s.EntityID)
}

// IssueCandidate is what a rule reports; the engine turns it into an Issue.
type IssueCandidate struct {
	EntityType  string
	EntityID    string
	Description string
	Evidence    map[string]any
}

// FixResult carries the before/after snapshot of the fields a fixer touched.
type FixResult struct {
	Before map[string]any
	After  map[string]any
}

// Rule is a named consistency check. Check must not write and must tolerate
// partial documents.
type Rule interface {
	Meta() RuleMeta
	Check(ctx context.Context, data DataReader, scope Scope) ([]IssueCandidate, error)
}

// FixableRule is a rule that also knows how to repair what it reports.
// Fixers only patch fields; they never delete a business record.
type FixableRule interface {
	Rule
	Fix(ctx context.Context, data TenantDataAccess, issue Issue) (FixResult, error)
}

// Fixable reports whether r carries a fixer.
func Fixable(r Rule) bool {
	_, ok := r.(FixableRule)
	return ok
}

// RuleInfo is the listing view of a rule.
type RuleInfo struct {
	RuleMeta
	Fixable bool `json:"fixable"`
}

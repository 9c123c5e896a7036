package integrity

import (
	"fmt"
	"time"
)

// ReportID tipe untuk ScanReport
type ReportID string

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	// SeverityError is reserved for synthetic issues produced when a rule itself fails.
	SeverityError Severity = "error"
)

// Category groups rules by the kind of invariant they guard.
type Category string

const (
	CategoryNumeric     Category = "numeric"
	CategoryReferential Category = "referential"
	CategoryAggregate   Category = "aggregate"
	CategoryState       Category = "state"
	CategoryDuplicate   Category = "duplicate"
	CategoryRequired    Category = "required"
)

// IssueStatus enum
type IssueStatus string

const (
	StatusOpen         IssueStatus = "open"
	StatusFixed        IssueStatus = "fixed"
	StatusAutoResolved IssueStatus = "auto_resolved"
	StatusFixFailed    IssueStatus = "fix_failed"
	StatusIgnored      IssueStatus = "ignored"
)

// Terminal reports whether no further transition is allowed from s.
func (s IssueStatus) Terminal() bool { return s != StatusOpen }

// EntityTypeRule is the entity type of synthetic rule-failure issues.
const EntityTypeRule = "rule"

// Issue is one concrete violation found by a rule against one entity.
type Issue struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"ruleId"`
	Severity    Severity       `json:"severity"`
	EntityType  string         `json:"entityType"`
	EntityID    string         `json:"entityId"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Fixable     bool           `json:"fixable"`
	Status      IssueStatus    `json:"status"`
	DetectedAt  time.Time      `json:"detectedAt"`
	FixedAt     *time.Time     `json:"fixedAt,omitempty"`
	FixedBy     string         `json:"fixedBy,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Transition moves the issue out of open. Only open → {fixed, auto_resolved, fix_failed, ignored}
// is legal; fixedAt/fixedBy are stamped only for fixed and auto_resolved.
func (i *Issue) Transition(to IssueStatus, at time.Time, actor, reason string) error {
	if i.Status != StatusOpen {
		return fmt.Errorf("issue %s: illegal transition %s -> %s", i.ID, i.Status, to)
	}
	switch to {
	case StatusFixed, StatusAutoResolved:
		t := at
		i.FixedAt = &t
		i.FixedBy = actor
	case StatusFixFailed:
		i.Error = reason
	case StatusIgnored:
	default:
		return fmt.Errorf("issue %s: unknown target status %q", i.ID, to)
	}
	i.Status = to
	return nil
}

// SeverityCounts value object, field-stable for storage and API.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Error    int `json:"error"`
}

func (c *SeverityCounts) add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	case SeverityError:
		c.Error++
	}
}

// Summary is computed once per report after every rule outcome is known.
type Summary struct {
	TotalIssues int               `json:"totalIssues"`
	BySeverity  SeverityCounts    `json:"bySeverity"`
	ByRule      map[string]int    `json:"byRule"`
	Skipped     map[string]string `json:"skipped,omitempty"`
	DurationMS  int64             `json:"durationMs"`
}

// Aggregate Root: ScanReport
type ScanReport struct {
	ID          ReportID  `json:"id"`
	TenantID    string    `json:"tenantId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	TriggeredBy string    `json:"triggeredBy"`
	Summary     Summary   `json:"summary"`
	Issues      []Issue   `json:"issues"`
}

// Summarize counts issues per severity and per rule. skipped is copied as-is.
func Summarize(issues []Issue, skipped map[string]string) Summary {
	s := Summary{
		TotalIssues: len(issues),
		ByRule:      make(map[string]int),
	}
	for _, is := range issues {
		s.BySeverity.add(is.Severity)
		s.ByRule[is.RuleID]++
	}
	if len(skipped) > 0 {
		s.Skipped = make(map[string]string, len(skipped))
		for k, v := range skipped {
			s.Skipped[k] = v
		}
	}
	return s
}

// FindIssue returns a pointer into r.Issues so callers can transition it in place.
func (r *ScanReport) FindIssue(id string) *Issue {
	for i := range r.Issues {
		if r.Issues[i].ID == id {
			return &r.Issues[i]
		}
	}
	return nil
}

// Clone copies the report deep enough that status transitions on the copy never reach
// the original. Evidence maps are shared; nothing mutates them after detection.
func (r *ScanReport) Clone() *ScanReport {
	if r == nil {
		return nil
	}
	out := *r
	out.Issues = make([]Issue, len(r.Issues))
	for i, is := range r.Issues {
		if is.FixedAt != nil {
			t := *is.FixedAt
			is.FixedAt = &t
		}
		out.Issues[i] = is
	}
	out.Summary.ByRule = make(map[string]int, len(r.Summary.ByRule))
	for k, v := range r.Summary.ByRule {
		out.Summary.ByRule[k] = v
	}
	if r.Summary.Skipped != nil {
		out.Summary.Skipped = make(map[string]string, len(r.Summary.Skipped))
		for k, v := range r.Summary.Skipped {
			out.Summary.Skipped[k] = v
		}
	}
	return &out
}

// ScanHistoryEntry is the listing projection of a report, without issue bodies.
type ScanHistoryEntry struct {
	ID          ReportID  `json:"id"`
	TenantID    string    `json:"tenantId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	TriggeredBy string    `json:"triggeredBy"`
	Summary     Summary   `json:"summary"`
}

// HistoryEntry projects r for listing.
func (r *ScanReport) HistoryEntry() ScanHistoryEntry {
	return ScanHistoryEntry{
		ID:          r.ID,
		TenantID:    r.TenantID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		TriggeredBy: r.TriggeredBy,
		Summary:     r.Summary,
	}
}

// SkippedIssue is an AutoFix request id that was not acted upon.
type SkippedIssue struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// FixOutcome partitions an AutoFix batch.
type FixOutcome struct {
	Fixed        []Issue        `json:"fixed"`
	AutoResolved []Issue        `json:"autoResolved"`
	Failed       []Issue        `json:"failed"`
	Skipped      []SkippedIssue `json:"skipped"`
}

// NewFixOutcome returns an outcome whose lists encode as [] rather than null.
func NewFixOutcome() *FixOutcome {
	return &FixOutcome{
		Fixed:        []Issue{},
		AutoResolved: []Issue{},
		Failed:       []Issue{},
		Skipped:      []SkippedIssue{},
	}
}

// AuditEvent is recorded for every fix that was actually applied.
type AuditEvent struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenantId"`
	ReportID   ReportID       `json:"reportId"`
	IssueID    string         `json:"issueId"`
	RuleID     string         `json:"ruleId"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Actor      string         `json:"actor"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}

package integrity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/monitoring"
)

const (
	DefaultConcurrency = 4
	DefaultRuleTimeout = 10 * time.Second
)

// ScanEngine runs every registered rule against one tenant and builds the report.
// It never writes tenant data.
type ScanEngine struct {
	Rules       *domain.Registry
	Data        domain.DataResolver
	Clock       domain.Clock
	IDs         domain.IDGenerator
	Concurrency int
	RuleTimeout time.Duration
}

type ruleOutcome struct {
	index      int
	candidates []domain.IssueCandidate
	err        error
	skipped    bool
	at         time.Time
}

// RunFullScan evaluates all rules under ctx's deadline. Rules that fail become one
// synthetic error issue each; rules still pending at the deadline are listed in
// summary.skipped. Only a failure to reach the tenant's data aborts the scan.
func (e *ScanEngine) RunFullScan(ctx context.Context, tenantID, triggeredBy string) (*domain.ScanReport, error) {
	started := e.Clock.Now()

	data, err := e.Data.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "resolve tenant data", err)
	}
	reader := readOnly{r: data}

	ruleSet := e.Rules.All()
	outcomes := make([]*ruleOutcome, len(ruleSet))
	// buffered so abandoned workers never block
	results := make(chan ruleOutcome, len(ruleSet))
	sem := semaphore.NewWeighted(int64(e.concurrency()))

	for i, rule := range ruleSet {
		i, rule := i, rule
		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- ruleOutcome{index: i, skipped: true}
				return
			}
			defer sem.Release(1)
			if ctx.Err() != nil {
				results <- ruleOutcome{index: i, skipped: true}
				return
			}
			cands, err := callGuarded(ctx, e.ruleTimeout(), func(rctx context.Context) ([]domain.IssueCandidate, error) {
				return rule.Check(rctx, reader, domain.Scope{})
			})
			if err != nil && ctx.Err() != nil {
				results <- ruleOutcome{index: i, skipped: true}
				return
			}
			results <- ruleOutcome{index: i, candidates: cands, err: err, at: e.Clock.Now()}
		}()
	}

	pending := len(ruleSet)
	for pending > 0 {
		select {
		case o := <-results:
			outcomes[o.index] = &o
			pending--
		case <-ctx.Done():
			pending = drain(results, outcomes, pending)
			if pending > 0 {
				slog.Warn("scan deadline reached, abandoning pending rules", "tenant", tenantID, "pending", pending)
			}
			pending = 0
		}
	}

	skipReason := "timeout"
	if errors.Is(ctx.Err(), context.Canceled) {
		skipReason = "cancelled"
	}

	issues := []domain.Issue{}
	skipped := map[string]string{}
	for i, rule := range ruleSet {
		meta := rule.Meta()
		o := outcomes[i]
		switch {
		case o == nil || o.skipped:
			skipped[meta.ID] = skipReason
			monitoring.RulesSkipped.WithLabelValues(meta.ID).Inc()
		case o.err != nil:
			slog.Warn("rule check failed", "tenant", tenantID, "rule", meta.ID, "err", o.err)
			monitoring.RuleFailures.WithLabelValues(meta.ID).Inc()
			issues = append(issues, ruleFailureIssue(meta, o.err, o.at))
		default:
			fixable := domain.Fixable(rule)
			for _, c := range o.candidates {
				issues = append(issues, domain.Issue{
					RuleID:      meta.ID,
					Severity:    meta.Severity,
					EntityType:  c.EntityType,
					EntityID:    c.EntityID,
					Description: c.Description,
					Evidence:    c.Evidence,
					Fixable:     fixable,
					Status:      domain.StatusOpen,
					DetectedAt:  o.at,
				})
			}
		}
	}
	// ids are assigned after collection so they follow registry order, not completion order
	for i := range issues {
		issues[i].ID = e.IDs.New()
	}

	finished := e.Clock.Now()
	summary := domain.Summarize(issues, skipped)
	summary.DurationMS = finished.Sub(started).Milliseconds()

	return &domain.ScanReport{
		ID:          domain.ReportID(e.IDs.New()),
		TenantID:    tenantID,
		StartedAt:   started,
		FinishedAt:  finished,
		TriggeredBy: triggeredBy,
		Summary:     summary,
		Issues:      issues,
	}, nil
}

// drain collects outcomes that arrived together with the deadline.
func drain(results <-chan ruleOutcome, outcomes []*ruleOutcome, pending int) int {
	for pending > 0 {
		select {
		case o := <-results:
			outcomes[o.index] = &o
			pending--
		default:
			return pending
		}
	}
	return pending
}

// ruleFailureIssue is the single synthetic issue recorded for a rule that could not run.
func ruleFailureIssue(meta domain.RuleMeta, err error, at time.Time) domain.Issue {
	reason := err.Error()
	return domain.Issue{
		RuleID:      meta.ID,
		Severity:    domain.SeverityError,
		EntityType:  domain.EntityTypeRule,
		EntityID:    meta.ID,
		Description: "rule check failed: " + reason,
		Evidence: map[string]any{
			"kind":   string(domain.KindRuleExecution),
			"reason": reason,
		},
		Fixable:    false,
		Status:     domain.StatusOpen,
		DetectedAt: at,
	}
}

func (e *ScanEngine) concurrency() int {
	if e.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return e.Concurrency
}

func (e *ScanEngine) ruleTimeout() time.Duration {
	if e.RuleTimeout <= 0 {
		return DefaultRuleTimeout
	}
	return e.RuleTimeout
}

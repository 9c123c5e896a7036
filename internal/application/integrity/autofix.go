package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/monitoring"
)

// MaxFixBatch caps how many issue ids one AutoFix call may carry.
const MaxFixBatch = 500

const reasonCancelled = "cancelled"

var validate = validator.New()

type fixRequest struct {
	TenantID string   `validate:"required"`
	IssueIDs []string `validate:"required,min=1,max=500,dive,required"`
	Actor    string   `validate:"required"`
}

// AutoFixEngine applies fixers for selected issues of the tenant's latest report.
type AutoFixEngine struct {
	Rules       *domain.Registry
	Data        domain.DataResolver
	Store       domain.IssueStore
	Audit       domain.AuditSink
	Clock       domain.Clock
	IDs         domain.IDGenerator
	RuleTimeout time.Duration
}

// AutoFix walks issueIDs strictly in order. Anything that cannot be acted on is skipped
// with a reason; a failing fixer marks its issue fix_failed and the batch continues.
// Once ctx is done the remaining ids are skipped as cancelled and stay open, while
// transitions already made are still saved. Only bad input or an unreachable store
// fails the whole call.
func (e *AutoFixEngine) AutoFix(ctx context.Context, tenantID string, issueIDs []string, actor string) (*domain.FixOutcome, error) {
	req := fixRequest{TenantID: strings.TrimSpace(tenantID), Actor: strings.TrimSpace(actor)}
	for _, id := range issueIDs {
		req.IssueIDs = append(req.IssueIDs, strings.TrimSpace(id))
	}
	if err := validate.Struct(req); err != nil {
		return nil, domain.NewError(domain.KindValidation, "autofix request", err)
	}

	report, err := e.Store.Latest(ctx, req.TenantID)
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "load latest report", err)
	}
	out := domain.NewFixOutcome()
	if report == nil {
		for _, id := range req.IssueIDs {
			out.Skipped = append(out.Skipped, domain.SkippedIssue{ID: id, Reason: "no scan report for tenant"})
		}
		countOutcome(out)
		return out, nil
	}

	data, err := e.Data.ForTenant(ctx, req.TenantID)
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "resolve tenant data", err)
	}
	access := fixAccess{TenantDataAccess: data}

	seen := make(map[string]bool, len(req.IssueIDs))
	mutated := false
	for _, id := range req.IssueIDs {
		if seen[id] {
			out.Skipped = append(out.Skipped, domain.SkippedIssue{ID: id, Reason: "duplicate id in request"})
			continue
		}
		seen[id] = true

		if ctx.Err() != nil {
			out.Skipped = append(out.Skipped, domain.SkippedIssue{ID: id, Reason: reasonCancelled})
			continue
		}
		issue := report.FindIssue(id)
		rule, reason := e.precondition(issue)
		if reason != "" {
			out.Skipped = append(out.Skipped, domain.SkippedIssue{ID: id, Reason: reason})
			continue
		}
		if e.fixOne(ctx, report, issue, rule, access, req.Actor, out) {
			mutated = true
		}
	}

	if mutated {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := e.Store.Save(pctx, report); err != nil {
			return nil, domain.NewError(domain.KindPersistence, "save report", err)
		}
	}
	countOutcome(out)
	return out, nil
}

// precondition returns the owning rule, or a skip reason.
func (e *AutoFixEngine) precondition(issue *domain.Issue) (domain.FixableRule, string) {
	if issue == nil {
		return nil, "unknown issue id"
	}
	if issue.Status != domain.StatusOpen {
		return nil, fmt.Sprintf("already resolved (%s)", issue.Status)
	}
	if !issue.Fixable {
		return nil, "rule is not auto-fixable"
	}
	rule, ok := e.Rules.Get(issue.RuleID)
	if !ok {
		return nil, "rule no longer registered"
	}
	fixable, ok := rule.(domain.FixableRule)
	if !ok {
		return nil, "rule is not auto-fixable"
	}
	return fixable, ""
}

// fixOne revalidates, then fixes. The issue is transitioned in place and the return
// value says whether it was. A caller that goes away mid-fix leaves the issue open.
func (e *AutoFixEngine) fixOne(ctx context.Context, report *domain.ScanReport, issue *domain.Issue, rule domain.FixableRule, data fixAccess, actor string, out *domain.FixOutcome) bool {
	log := slog.With("tenant", report.TenantID, "issue", issue.ID, "rule", issue.RuleID, "entity", issue.EntityID)

	scope := domain.Scope{EntityType: issue.EntityType, EntityID: issue.EntityID}
	cands, err := callGuarded(ctx, e.ruleTimeout(), func(rctx context.Context) ([]domain.IssueCandidate, error) {
		return rule.Check(rctx, readOnly{r: data}, scope)
	})
	if err != nil {
		if ctx.Err() != nil {
			out.Skipped = append(out.Skipped, domain.SkippedIssue{ID: issue.ID, Reason: reasonCancelled})
			return false
		}
		log.Warn("revalidation failed", "err", err)
		e.transition(issue, domain.StatusFixFailed, actor, "revalidation failed: "+err.Error())
		out.Failed = append(out.Failed, *issue)
		return true
	}
	if !stillHolds(cands, issue) {
		stale := domain.NewError(domain.KindFixPreconditionStale, "revalidate", fmt.Errorf("condition no longer holds"))
		log.Info("issue already resolved, fixer not invoked", "reason", stale)
		e.transition(issue, domain.StatusAutoResolved, actor, "")
		out.AutoResolved = append(out.AutoResolved, *issue)
		return true
	}

	res, err := callGuarded(ctx, e.ruleTimeout(), func(rctx context.Context) (domain.FixResult, error) {
		return rule.Fix(rctx, data, *issue)
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("fix interrupted, issue left open", "err", err)
			out.Skipped = append(out.Skipped, domain.SkippedIssue{ID: issue.ID, Reason: reasonCancelled})
			return false
		}
		ferr := domain.NewError(domain.KindFixExecution, "fix", err)
		log.Warn("fix failed", "err", ferr)
		e.transition(issue, domain.StatusFixFailed, actor, err.Error())
		out.Failed = append(out.Failed, *issue)
		return true
	}
	e.transition(issue, domain.StatusFixed, actor, "")
	out.Fixed = append(out.Fixed, *issue)

	event := domain.AuditEvent{
		ID:         e.IDs.New(),
		TenantID:   report.TenantID,
		ReportID:   report.ID,
		IssueID:    issue.ID,
		RuleID:     issue.RuleID,
		EntityType: issue.EntityType,
		EntityID:   issue.EntityID,
		Actor:      actor,
		Before:     res.Before,
		After:      res.After,
		RecordedAt: *issue.FixedAt,
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := e.Audit.Record(actx, event); err != nil {
		monitoring.AuditFailures.Inc()
		log.Error("could not record audit event for applied fix", "err", err, "event", event.ID)
	}
	return true
}

func (e *AutoFixEngine) transition(issue *domain.Issue, to domain.IssueStatus, actor, reason string) {
	if err := issue.Transition(to, e.Clock.Now(), actor, reason); err != nil {
		// precondition guarantees open; reaching this is a programming error
		slog.Error("illegal issue transition", "err", err)
	}
}

// stillHolds reports whether revalidation reproduced the issue for the same entity.
func stillHolds(cands []domain.IssueCandidate, issue *domain.Issue) bool {
	for _, c := range cands {
		if c.EntityID == issue.EntityID && c.EntityType == issue.EntityType {
			return true
		}
	}
	return false
}

func countOutcome(out *domain.FixOutcome) {
	monitoring.FixOutcomes.WithLabelValues(string(domain.StatusFixed)).Add(float64(len(out.Fixed)))
	monitoring.FixOutcomes.WithLabelValues(string(domain.StatusAutoResolved)).Add(float64(len(out.AutoResolved)))
	monitoring.FixOutcomes.WithLabelValues(string(domain.StatusFixFailed)).Add(float64(len(out.Failed)))
	monitoring.FixOutcomes.WithLabelValues("skipped").Add(float64(len(out.Skipped)))
}

func (e *AutoFixEngine) ruleTimeout() time.Duration {
	if e.RuleTimeout <= 0 {
		return DefaultRuleTimeout
	}
	return e.RuleTimeout
}

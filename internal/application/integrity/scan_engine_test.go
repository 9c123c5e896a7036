package integrity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity/rules"
	"github.com/bryanwahyu/automaton-integrity/internal/infra/memory"
)

func newEngine(reg *domain.Registry, data domain.DataResolver) *ScanEngine {
	return &ScanEngine{Rules: reg, Data: data, Clock: newClock(), IDs: &seqIDs{}, Concurrency: 4, RuleTimeout: time.Second}
}

func TestRunFullScanEmptyTenant(t *testing.T) {
	e := newEngine(rules.Default(), memory.NewDocumentStore())

	rep, err := e.RunFullScan(context.Background(), "empty", "test")
	require.NoError(t, err)
	assert.NotNil(t, rep.Issues)
	assert.Empty(t, rep.Issues)
	assert.Equal(t, 0, rep.Summary.TotalIssues)
	assert.Empty(t, rep.Summary.Skipped)
	assert.Equal(t, "empty", rep.TenantID)
	assert.Equal(t, "test", rep.TriggeredBy)
	assert.False(t, rep.FinishedAt.Before(rep.StartedAt))
}

func TestRunFullScanKeepsRegistryOrder(t *testing.T) {
	reg := domain.MustRegistry(
		stubRule{id: "slow", delay: 30 * time.Millisecond, cands: []domain.IssueCandidate{candidate("a"), candidate("b")}},
		stubRule{id: "fast", cands: []domain.IssueCandidate{candidate("c")}},
	)
	e := newEngine(reg, memory.NewDocumentStore())

	rep, err := e.RunFullScan(context.Background(), "t1", "test")
	require.NoError(t, err)
	require.Len(t, rep.Issues, 3)

	assert.Equal(t, []string{"slow", "slow", "fast"}, []string{rep.Issues[0].RuleID, rep.Issues[1].RuleID, rep.Issues[2].RuleID})
	assert.Equal(t, []string{"a", "b", "c"}, []string{rep.Issues[0].EntityID, rep.Issues[1].EntityID, rep.Issues[2].EntityID})

	seen := map[string]bool{string(rep.ID): true}
	for _, is := range rep.Issues {
		assert.False(t, seen[is.ID], "duplicate id %s", is.ID)
		seen[is.ID] = true
		assert.Equal(t, domain.StatusOpen, is.Status)
		assert.False(t, is.Fixable)
	}
	assert.Equal(t, 3, rep.Summary.TotalIssues)
	assert.Equal(t, 3, rep.Summary.BySeverity.Low)
	assert.Equal(t, map[string]int{"slow": 2, "fast": 1}, rep.Summary.ByRule)
}

func TestRunFullScanRuleFailures(t *testing.T) {
	tests := []struct {
		name    string
		rule    stubRule
		timeout time.Duration
		reason  string
	}{
		{"error", stubRule{id: "broken", err: errors.New("collection unreadable")}, time.Second, "collection unreadable"},
		{"panic", stubRule{id: "broken", panics: true}, time.Second, "panic: rule exploded"},
		{"timeout", stubRule{id: "broken", block: true, release: make(chan struct{})}, 20 * time.Millisecond, "rule timed out after 20ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := domain.MustRegistry(tt.rule, stubRule{id: "healthy", cands: []domain.IssueCandidate{candidate("x")}})
			e := newEngine(reg, memory.NewDocumentStore())
			e.RuleTimeout = tt.timeout

			rep, err := e.RunFullScan(context.Background(), "t1", "test")
			require.NoError(t, err)
			require.Len(t, rep.Issues, 2)

			failed := rep.Issues[0]
			assert.Equal(t, "broken", failed.RuleID)
			assert.Equal(t, domain.SeverityError, failed.Severity)
			assert.Equal(t, domain.EntityTypeRule, failed.EntityType)
			assert.Equal(t, "broken", failed.EntityID)
			assert.False(t, failed.Fixable)
			assert.Contains(t, failed.Evidence["reason"], tt.reason)
			assert.Equal(t, string(domain.KindRuleExecution), failed.Evidence["kind"])

			assert.Equal(t, "healthy", rep.Issues[1].RuleID)
			assert.Equal(t, 1, rep.Summary.BySeverity.Error)
			assert.Empty(t, rep.Summary.Skipped)
		})
	}
}

func TestRunFullScanDeadlineSkipsPendingRules(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	reg := domain.MustRegistry(
		stubRule{id: "quick", cands: []domain.IssueCandidate{candidate("q")}},
		stubRule{id: "stuck", block: true, release: release},
	)
	e := newEngine(reg, memory.NewDocumentStore())
	e.RuleTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rep, err := e.RunFullScan(ctx, "t1", "test")
	require.NoError(t, err)

	require.Len(t, rep.Issues, 1)
	assert.Equal(t, "quick", rep.Issues[0].RuleID)
	assert.Equal(t, map[string]string{"stuck": "timeout"}, rep.Summary.Skipped)
}

func TestRunFullScanCancelled(t *testing.T) {
	reg := domain.MustRegistry(
		stubRule{id: "one", cands: []domain.IssueCandidate{candidate("a")}},
		stubRule{id: "two"},
	)
	e := newEngine(reg, memory.NewDocumentStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := e.RunFullScan(ctx, "t1", "test")
	require.NoError(t, err)
	assert.Empty(t, rep.Issues)
	assert.Equal(t, map[string]string{"one": "cancelled", "two": "cancelled"}, rep.Summary.Skipped)
}

func TestRunFullScanChecksCannotWrite(t *testing.T) {
	var sawWriter bool
	e := newEngine(domain.MustRegistry(writeSniffer{sawWriter: &sawWriter}), memory.NewDocumentStore())

	_, err := e.RunFullScan(context.Background(), "t1", "test")
	require.NoError(t, err)
	assert.False(t, sawWriter)
}

func TestRunFullScanDataUnreachable(t *testing.T) {
	e := newEngine(rules.Default(), memory.NewDocumentStore())

	_, err := e.RunFullScan(context.Background(), "", "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestRunFullScanMarksFixableIssues(t *testing.T) {
	docs := memory.NewDocumentStore()
	docs.Seed("t1", rules.CollectionInvoices,
		domain.Document{"id": "inv-1", "customerId": "c1", "totalAmount": 100.0, "paidAmount": 150.0},
	)
	docs.Seed("t1", rules.CollectionCustomers, domain.Document{"id": "c1"})
	e := newEngine(rules.Default(), docs)

	rep, err := e.RunFullScan(context.Background(), "t1", "test")
	require.NoError(t, err)

	overpaid := 0
	for _, is := range rep.Issues {
		if is.RuleID == "invoice-overpaid" {
			overpaid++
			assert.True(t, is.Fixable)
			assert.Equal(t, domain.SeverityHigh, is.Severity)
			assert.Equal(t, "inv-1", is.EntityID)
		}
	}
	assert.Equal(t, 1, overpaid)
}

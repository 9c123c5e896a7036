package integrity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity/rules"
	"github.com/bryanwahyu/automaton-integrity/internal/infra/memory"
)

type fixture struct {
	docs   *memory.DocumentStore
	store  *memory.IssueStore
	audit  *memory.AuditSink
	clock  *stepClock
	ids    *seqIDs
	reg    *domain.Registry
	engine *AutoFixEngine
}

func newFixture(reg *domain.Registry) *fixture {
	f := &fixture{
		docs:  memory.NewDocumentStore(),
		store: memory.NewIssueStore(),
		audit: memory.NewAuditSink(),
		clock: newClock(),
		ids:   &seqIDs{},
		reg:   reg,
	}
	f.engine = &AutoFixEngine{
		Rules: reg, Data: f.docs, Store: f.store, Audit: f.audit,
		Clock: f.clock, IDs: f.ids, RuleTimeout: time.Second,
	}
	return f
}

// scan runs a full scan and stores it as latest.
func (f *fixture) scan(t *testing.T, tenant string) *domain.ScanReport {
	t.Helper()
	e := &ScanEngine{Rules: f.reg, Data: f.docs, Clock: f.clock, IDs: f.ids}
	rep, err := e.RunFullScan(context.Background(), tenant, "test")
	require.NoError(t, err)
	require.NoError(t, f.store.Save(context.Background(), rep))
	return rep
}

func issueFor(t *testing.T, rep *domain.ScanReport, ruleID, entityID string) domain.Issue {
	t.Helper()
	for _, is := range rep.Issues {
		if is.RuleID == ruleID && is.EntityID == entityID {
			return is
		}
	}
	t.Fatalf("no %s issue for %s", ruleID, entityID)
	return domain.Issue{}
}

func invoiceRegistry() *domain.Registry {
	return domain.MustRegistry(rules.InvoiceOverpaidRule{}, rules.InvoiceMissingCustomerRule{})
}

func seedOverpaid(f *fixture) {
	f.docs.Seed("acme", rules.CollectionInvoices,
		domain.Document{"id": "inv-1", "invoiceNumber": "INV-1", "customerId": "ghost", "totalAmount": 100.0, "paidAmount": 150.0},
	)
}

func TestAutoFixOverpaidInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(invoiceRegistry())
	seedOverpaid(f)
	rep := f.scan(t, "acme")
	issue := issueFor(t, rep, "invoice-overpaid", "inv-1")

	out, err := f.engine.AutoFix(ctx, "acme", []string{issue.ID}, "alice")
	require.NoError(t, err)
	require.Len(t, out.Fixed, 1)
	assert.Empty(t, out.Failed)
	assert.Empty(t, out.AutoResolved)
	assert.Empty(t, out.Skipped)

	fixed := out.Fixed[0]
	assert.Equal(t, domain.StatusFixed, fixed.Status)
	assert.Equal(t, "alice", fixed.FixedBy)
	require.NotNil(t, fixed.FixedAt)

	assert.Equal(t, 100.0, f.docs.Get("acme", rules.CollectionInvoices, "inv-1")["paidAmount"])
	assert.Equal(t, 1, f.docs.Mutations())

	events := f.audit.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, issue.ID, ev.IssueID)
	assert.Equal(t, rep.ID, ev.ReportID)
	assert.Equal(t, "alice", ev.Actor)
	assert.Equal(t, 150.0, ev.Before["paidAmount"])
	assert.Equal(t, 100.0, ev.After["paidAmount"])
	assert.Equal(t, *fixed.FixedAt, ev.RecordedAt)

	latest, err := f.store.Latest(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFixed, latest.FindIssue(issue.ID).Status)
	assert.Equal(t, domain.StatusOpen, issueFor(t, latest, "invoice-missing-customer", "inv-1").Status)
}

func TestAutoFixIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(invoiceRegistry())
	seedOverpaid(f)
	issue := issueFor(t, f.scan(t, "acme"), "invoice-overpaid", "inv-1")

	_, err := f.engine.AutoFix(ctx, "acme", []string{issue.ID}, "alice")
	require.NoError(t, err)

	out, err := f.engine.AutoFix(ctx, "acme", []string{issue.ID}, "bob")
	require.NoError(t, err)
	assert.Empty(t, out.Fixed)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "already resolved (fixed)", out.Skipped[0].Reason)

	assert.Len(t, f.audit.Events(), 1)
	assert.Equal(t, 1, f.docs.Mutations())
}

func TestAutoFixOrphanProductRef(t *testing.T) {
	ctx := context.Background()
	f := newFixture(domain.MustRegistry(rules.OrphanProductRefRule{}))
	f.docs.Seed("acme", rules.CollectionProducts, domain.Document{"id": "p1"})
	f.docs.Seed("acme", rules.CollectionStock,
		domain.Document{"id": "s1", "productId": "p1"},
		domain.Document{"id": "s2", "productId": "p404"},
	)
	rep := f.scan(t, "acme")
	require.Len(t, rep.Issues, 1)

	out, err := f.engine.AutoFix(ctx, "acme", []string{rep.Issues[0].ID}, "ops")
	require.NoError(t, err)
	require.Len(t, out.Fixed, 1)

	doc := f.docs.Get("acme", rules.CollectionStock, "s2")
	require.NotNil(t, doc, "the stock row is kept")
	assert.Nil(t, doc["productId"])
	assert.Equal(t, "p1", f.docs.Get("acme", rules.CollectionStock, "s1")["productId"])
}

func TestAutoFixAlreadyRepairedIsAutoResolved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(invoiceRegistry())
	seedOverpaid(f)
	issue := issueFor(t, f.scan(t, "acme"), "invoice-overpaid", "inv-1")

	// someone fixes the invoice by hand after the scan
	h, err := f.docs.ForTenant(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, h.Patch(ctx, rules.CollectionInvoices, "inv-1", map[string]any{"paidAmount": 90.0}))

	out, err := f.engine.AutoFix(ctx, "acme", []string{issue.ID}, "alice")
	require.NoError(t, err)
	require.Len(t, out.AutoResolved, 1)
	assert.Equal(t, domain.StatusAutoResolved, out.AutoResolved[0].Status)
	assert.Equal(t, "alice", out.AutoResolved[0].FixedBy)
	assert.Empty(t, out.Fixed)

	assert.Equal(t, 90.0, f.docs.Get("acme", rules.CollectionInvoices, "inv-1")["paidAmount"])
	assert.Equal(t, 1, f.docs.Mutations(), "fixer must not run")
	assert.Empty(t, f.audit.Events())
}

func TestAutoFixSkipReasons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(invoiceRegistry())
	seedOverpaid(f)
	rep := f.scan(t, "acme")
	overpaid := issueFor(t, rep, "invoice-overpaid", "inv-1")
	missing := issueFor(t, rep, "invoice-missing-customer", "inv-1")

	out, err := f.engine.AutoFix(ctx, "acme", []string{"nope", missing.ID, overpaid.ID, overpaid.ID}, "alice")
	require.NoError(t, err)
	require.Len(t, out.Fixed, 1)
	assert.Equal(t, []domain.SkippedIssue{
		{ID: "nope", Reason: "unknown issue id"},
		{ID: missing.ID, Reason: "rule is not auto-fixable"},
		{ID: overpaid.ID, Reason: "duplicate id in request"},
	}, out.Skipped)

	t.Run("no report", func(t *testing.T) {
		out, err := f.engine.AutoFix(ctx, "never-scanned", []string{"a", "b"}, "alice")
		require.NoError(t, err)
		assert.Equal(t, []domain.SkippedIssue{
			{ID: "a", Reason: "no scan report for tenant"},
			{ID: "b", Reason: "no scan report for tenant"},
		}, out.Skipped)
	})

	t.Run("rule removed since the scan", func(t *testing.T) {
		g := newFixture(invoiceRegistry())
		seedOverpaid(g)
		issue := issueFor(t, g.scan(t, "acme"), "invoice-overpaid", "inv-1")
		g.engine.Rules = domain.MustRegistry(rules.InvoiceMissingCustomerRule{})

		out, err := g.engine.AutoFix(ctx, "acme", []string{issue.ID}, "alice")
		require.NoError(t, err)
		assert.Equal(t, []domain.SkippedIssue{{ID: issue.ID, Reason: "rule no longer registered"}}, out.Skipped)
		assert.Equal(t, 0, g.docs.Mutations())
	})
}

func TestAutoFixValidation(t *testing.T) {
	f := newFixture(invoiceRegistry())
	tooMany := make([]string, MaxFixBatch+1)
	for i := range tooMany {
		tooMany[i] = "id"
	}

	tests := []struct {
		name   string
		tenant string
		ids    []string
		actor  string
	}{
		{"no ids", "acme", nil, "alice"},
		{"empty list", "acme", []string{}, "alice"},
		{"blank id", "acme", []string{"a", "  "}, "alice"},
		{"too many", "acme", tooMany, "alice"},
		{"blank actor", "acme", []string{"a"}, " "},
		{"blank tenant", "", []string{"a"}, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.engine.AutoFix(context.Background(), tt.tenant, tt.ids, tt.actor)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestAutoFixFailureContinuesBatch(t *testing.T) {
	ctx := context.Background()
	broken := stubFixer{
		stubRule: stubRule{id: "broken-fixer", cands: []domain.IssueCandidate{candidate("a")}},
		fixErr:   errors.New("upstream rejected patch"),
	}
	f := newFixture(domain.MustRegistry(broken, rules.InvoiceOverpaidRule{}))
	seedOverpaid(f)
	rep := f.scan(t, "acme")
	bad := issueFor(t, rep, "broken-fixer", "a")
	good := issueFor(t, rep, "invoice-overpaid", "inv-1")

	out, err := f.engine.AutoFix(ctx, "acme", []string{bad.ID, good.ID}, "alice")
	require.NoError(t, err)
	require.Len(t, out.Failed, 1)
	require.Len(t, out.Fixed, 1)

	failed := out.Failed[0]
	assert.Equal(t, domain.StatusFixFailed, failed.Status)
	assert.Equal(t, "upstream rejected patch", failed.Error)
	assert.Nil(t, failed.FixedAt)

	latest, _ := f.store.Latest(ctx, "acme")
	assert.Equal(t, domain.StatusFixFailed, latest.FindIssue(bad.ID).Status)

	// a failed issue stays failed until the next scan
	again, err := f.engine.AutoFix(ctx, "acme", []string{bad.ID}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "already resolved (fix_failed)", again.Skipped[0].Reason)
}

func TestAutoFixRevalidationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(invoiceRegistry())
	seedOverpaid(f)
	issue := issueFor(t, f.scan(t, "acme"), "invoice-overpaid", "inv-1")
	f.engine.Rules = domain.MustRegistry(stubFixer{stubRule: stubRule{id: "invoice-overpaid", err: errors.New("read failed")}})

	out, err := f.engine.AutoFix(ctx, "acme", []string{issue.ID}, "alice")
	require.NoError(t, err)
	require.Len(t, out.Failed, 1)
	assert.True(t, strings.HasPrefix(out.Failed[0].Error, "revalidation failed: "))
	assert.Equal(t, 0, f.docs.Mutations())
}

func TestAutoFixRefusesPrimaryDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(domain.MustRegistry(deletingFixer{collection: rules.CollectionLeads}))
	f.docs.Seed("acme", rules.CollectionLeads, domain.Document{"id": "l1"})
	rep := f.scan(t, "acme")

	out, err := f.engine.AutoFix(ctx, "acme", []string{rep.Issues[0].ID}, "alice")
	require.NoError(t, err)
	require.Len(t, out.Failed, 1)
	assert.Contains(t, out.Failed[0].Error, "primary business record")
	assert.NotNil(t, f.docs.Get("acme", rules.CollectionLeads, "l1"))
}

func TestAutoFixSaveFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(invoiceRegistry())
	seedOverpaid(f)
	issue := issueFor(t, f.scan(t, "acme"), "invoice-overpaid", "inv-1")
	f.engine.Store = failingSave{f.store}

	out, err := f.engine.AutoFix(ctx, "acme", []string{issue.ID}, "alice")
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestAutoFixLoadFailure(t *testing.T) {
	f := newFixture(invoiceRegistry())
	f.store.FailWith = errors.New("connection refused")

	_, err := f.engine.AutoFix(context.Background(), "acme", []string{"a"}, "alice")
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestAutoFixAuditFailureKeepsFix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(invoiceRegistry())
	seedOverpaid(f)
	issue := issueFor(t, f.scan(t, "acme"), "invoice-overpaid", "inv-1")
	f.engine.Audit = failingAudit{}

	out, err := f.engine.AutoFix(ctx, "acme", []string{issue.ID}, "alice")
	require.NoError(t, err)
	require.Len(t, out.Fixed, 1)
	assert.Equal(t, 100.0, f.docs.Get("acme", rules.CollectionInvoices, "inv-1")["paidAmount"])
}

func TestAutoFixCancelledLeavesIssuesOpen(t *testing.T) {
	f := newFixture(invoiceRegistry())
	seedOverpaid(f)
	issue := issueFor(t, f.scan(t, "acme"), "invoice-overpaid", "inv-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := f.engine.AutoFix(ctx, "acme", []string{issue.ID}, "alice")
	require.NoError(t, err)
	assert.Empty(t, out.Failed)
	assert.Empty(t, out.Fixed)
	assert.Equal(t, []domain.SkippedIssue{{ID: issue.ID, Reason: "cancelled"}}, out.Skipped)

	latest, err := f.store.Latest(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, latest.FindIssue(issue.ID).Status)
	assert.Equal(t, 0, f.docs.Mutations())

	retry, err := f.engine.AutoFix(context.Background(), "acme", []string{issue.ID}, "alice")
	require.NoError(t, err)
	require.Len(t, retry.Fixed, 1)
	assert.Equal(t, domain.StatusFixed, retry.Fixed[0].Status)
}

func TestAutoFixCancelledMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupting := cancellingFixer{
		stubRule: stubRule{id: "interrupting", cands: []domain.IssueCandidate{candidate("b"), candidate("c")}},
		cancel:   cancel,
	}
	f := newFixture(domain.MustRegistry(rules.InvoiceOverpaidRule{}, interrupting))
	seedOverpaid(f)
	rep := f.scan(t, "acme")
	first := issueFor(t, rep, "invoice-overpaid", "inv-1")
	b := issueFor(t, rep, "interrupting", "b")
	c := issueFor(t, rep, "interrupting", "c")

	out, err := f.engine.AutoFix(ctx, "acme", []string{first.ID, b.ID, c.ID}, "alice")
	require.NoError(t, err)
	require.Len(t, out.Fixed, 1)
	assert.Empty(t, out.Failed)
	assert.Equal(t, []domain.SkippedIssue{
		{ID: b.ID, Reason: "cancelled"},
		{ID: c.ID, Reason: "cancelled"},
	}, out.Skipped)

	// the fix made before the cancel is persisted
	latest, err := f.store.Latest(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFixed, latest.FindIssue(first.ID).Status)
	assert.Equal(t, domain.StatusOpen, latest.FindIssue(b.ID).Status)
	assert.Equal(t, domain.StatusOpen, latest.FindIssue(c.ID).Status)
	assert.Len(t, f.audit.Events(), 1)
}

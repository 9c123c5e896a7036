package integrity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/infra/memory"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// stepClock advances one millisecond per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *stepClock { return &stepClock{now: epoch} }

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

// stubRule returns canned candidates. block makes Check wait for release or ctx.
type stubRule struct {
	id      string
	cands   []domain.IssueCandidate
	err     error
	panics  bool
	delay   time.Duration
	block   bool
	release <-chan struct{}
	started chan<- struct{}
}

func (s stubRule) Meta() domain.RuleMeta {
	return domain.RuleMeta{ID: s.id, Title: s.id, Category: domain.CategoryNumeric, Severity: domain.SeverityLow, EntityType: "things"}
}

func (s stubRule) Check(ctx context.Context, _ domain.DataReader, scope domain.Scope) ([]domain.IssueCandidate, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.panics {
		panic("rule exploded")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.block {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if scope.Full() {
		return s.cands, nil
	}
	var out []domain.IssueCandidate
	for _, c := range s.cands {
		if c.EntityID == scope.EntityID {
			out = append(out, c)
		}
	}
	return out, nil
}

// stubFixer reports its candidates and fails every fix with fixErr.
type stubFixer struct {
	stubRule
	fixErr error
}

func (s stubFixer) Fix(context.Context, domain.TenantDataAccess, domain.Issue) (domain.FixResult, error) {
	if s.fixErr != nil {
		return domain.FixResult{}, s.fixErr
	}
	return domain.FixResult{}, nil
}

// writeSniffer records whether its check handle could be used for writes.
type writeSniffer struct {
	sawWriter *bool
}

func (writeSniffer) Meta() domain.RuleMeta {
	return domain.RuleMeta{ID: "write-sniffer", Severity: domain.SeverityLow, EntityType: "things"}
}

func (p writeSniffer) Check(_ context.Context, data domain.DataReader, _ domain.Scope) ([]domain.IssueCandidate, error) {
	_, ok := data.(domain.TenantDataAccess)
	*p.sawWriter = ok
	return nil, nil
}

// deletingFixer tries to remove the record it was asked to fix.
type deletingFixer struct{ collection string }

func (d deletingFixer) Meta() domain.RuleMeta {
	return domain.RuleMeta{ID: "deleter", Severity: domain.SeverityLow, EntityType: d.collection}
}

func (d deletingFixer) Check(ctx context.Context, data domain.DataReader, scope domain.Scope) ([]domain.IssueCandidate, error) {
	docs, err := data.List(ctx, d.collection, scope.Filter())
	if err != nil {
		return nil, err
	}
	var out []domain.IssueCandidate
	for _, doc := range docs {
		out = append(out, domain.IssueCandidate{EntityType: d.collection, EntityID: doc.ID(), Description: "unwanted"})
	}
	return out, nil
}

func (d deletingFixer) Fix(ctx context.Context, data domain.TenantDataAccess, issue domain.Issue) (domain.FixResult, error) {
	return domain.FixResult{}, data.Delete(ctx, d.collection, issue.EntityID)
}

type failingSave struct {
	*memory.IssueStore
}

func (failingSave) Save(context.Context, *domain.ScanReport) error {
	return errors.New("disk full")
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, domain.AuditEvent) error {
	return errors.New("audit store down")
}

type recordingArchive struct {
	mu   sync.Mutex
	keys []domain.ReportID
	err  error
}

func (a *recordingArchive) Put(_ context.Context, r *domain.ScanReport) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, r.ID)
	return "mem://" + string(r.ID), nil
}

func candidate(entityID string) domain.IssueCandidate {
	return domain.IssueCandidate{EntityType: "things", EntityID: entityID, Description: "bad " + entityID}
}

// cancellingFixer cancels the caller's context from inside Fix, the way a client
// disconnect lands halfway through a batch.
type cancellingFixer struct {
	stubRule
	cancel context.CancelFunc
}

func (c cancellingFixer) Fix(ctx context.Context, _ domain.TenantDataAccess, _ domain.Issue) (domain.FixResult, error) {
	c.cancel()
	<-ctx.Done()
	return domain.FixResult{}, ctx.Err()
}

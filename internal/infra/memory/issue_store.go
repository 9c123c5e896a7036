package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// IssueStore keeps every saved report per tenant plus the latest pointer.
type IssueStore struct {
	mu      sync.RWMutex
	reports map[string]map[integrity.ReportID]*integrity.ScanReport
	latest  map[string]integrity.ReportID
	// FailWith, when set, is returned by every call. Lets tests simulate an outage.
	FailWith error
}

func NewIssueStore() *IssueStore {
	return &IssueStore{
		reports: make(map[string]map[integrity.ReportID]*integrity.ScanReport),
		latest:  make(map[string]integrity.ReportID),
	}
}

func (s *IssueStore) Latest(_ context.Context, tenantID string) (*integrity.ScanReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	id, ok := s.latest[tenantID]
	if !ok {
		return nil, nil
	}
	return s.reports[tenantID][id].Clone(), nil
}

func (s *IssueStore) History(_ context.Context, tenantID string, limit int) ([]integrity.ScanHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	limit = clampLimit(limit)
	out := make([]integrity.ScanHistoryEntry, 0, len(s.reports[tenantID]))
	for _, r := range s.reports[tenantID] {
		out = append(out, r.Clone().HistoryEntry())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Save stores a copy and moves the latest pointer only forward in finishedAt.
func (s *IssueStore) Save(_ context.Context, report *integrity.ScanReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	tenant := report.TenantID
	if s.reports[tenant] == nil {
		s.reports[tenant] = make(map[integrity.ReportID]*integrity.ScanReport)
	}
	s.reports[tenant][report.ID] = report.Clone()

	cur, ok := s.latest[tenant]
	if !ok || !s.reports[tenant][cur].FinishedAt.After(report.FinishedAt) {
		s.latest[tenant] = report.ID
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

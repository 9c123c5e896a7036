package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/middleware"
)

type fakeService struct {
	scanErr   error
	latest    *domain.ScanReport
	history   []domain.ScanHistoryEntry
	fixErr    error
	lastBy    string
	lastLimit int
	lastIDs   []string
	lastActor string
}

func (f *fakeService) RunScan(_ context.Context, tenantID, triggeredBy string) (*domain.ScanReport, error) {
	f.lastBy = triggeredBy
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &domain.ScanReport{ID: "r1", TenantID: tenantID, TriggeredBy: triggeredBy, Issues: []domain.Issue{}}, nil
}

func (f *fakeService) GetLatestReport(_ context.Context, tenantID string) (*domain.ScanReport, error) {
	if f.latest == nil {
		return nil, domain.Errorf(domain.KindNotFound, "latest report", "no scan report for tenant %s", tenantID)
	}
	return f.latest, nil
}

func (f *fakeService) GetHistory(_ context.Context, _ string, limit int) ([]domain.ScanHistoryEntry, error) {
	f.lastLimit = limit
	return f.history, nil
}

func (f *fakeService) AutoFix(_ context.Context, _ string, issueIDs []string, actor string) (*domain.FixOutcome, error) {
	f.lastIDs, f.lastActor = issueIDs, actor
	if f.fixErr != nil {
		return nil, f.fixErr
	}
	out := domain.NewFixOutcome()
	for _, id := range issueIDs {
		out.Skipped = append(out.Skipped, domain.SkippedIssue{ID: id, Reason: "unknown issue id"})
	}
	return out, nil
}

func (f *fakeService) Rules() []domain.RuleInfo {
	return []domain.RuleInfo{{RuleMeta: domain.RuleMeta{ID: "invoice-overpaid", Severity: domain.SeverityHigh}, Fixable: true}}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestRunScanRoute(t *testing.T) {
	svc := &fakeService{}
	h := NewRouter(svc, Options{})

	rec := do(t, h, http.MethodPost, "/v1/acme/integrity/scans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api", svc.lastBy)

	var rep domain.ScanReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "acme", rep.TenantID)

	rec = do(t, h, http.MethodPost, "/v1/acme/integrity/scans", `{"triggered_by":"nightly"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nightly", svc.lastBy)

	rec = do(t, h, http.MethodPost, "/v1/acme/integrity/scans", `{"unexpected":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", domain.Errorf(domain.KindValidation, "run scan", "tenant id is required"), http.StatusBadRequest, "validation"},
		{"concurrency", domain.Errorf(domain.KindConcurrency, "scan", "busy"), http.StatusConflict, "concurrency"},
		{"persistence", domain.NewError(domain.KindPersistence, "save report", errors.New("db down")), http.StatusServiceUnavailable, "persistence"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(&fakeService{scanErr: tt.err}, Options{})
			rec := do(t, h, http.MethodPost, "/v1/acme/integrity/scans", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, errorKind(t, rec))
		})
	}
}

func TestLatestAndHistoryRoutes(t *testing.T) {
	svc := &fakeService{}
	h := NewRouter(svc, Options{})

	rec := do(t, h, http.MethodGet, "/v1/acme/integrity/scans/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorKind(t, rec))

	svc.latest = &domain.ScanReport{ID: "r9", TenantID: "acme", Issues: []domain.Issue{}}
	rec = do(t, h, http.MethodGet, "/v1/acme/integrity/scans/latest", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"r9"`)

	svc.history = []domain.ScanHistoryEntry{}
	rec = do(t, h, http.MethodGet, "/v1/acme/integrity/scans/history?limit=500", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, svc.lastLimit)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/acme/integrity/scans/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutoFixRoute(t *testing.T) {
	svc := &fakeService{}
	h := NewRouter(svc, Options{})

	rec := do(t, h, http.MethodPost, "/v1/acme/integrity/autofix", `{"issue_ids":["i1","i2"],"actor":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"i1", "i2"}, svc.lastIDs)
	assert.Equal(t, "alice", svc.lastActor)

	var out domain.FixOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Skipped, 2)
	assert.NotNil(t, out.Fixed)

	bad := []string{
		`{"issue_ids":[],"actor":"alice"}`,
		`{"issue_ids":["i1"]}`,
		`{"issue_ids":[""],"actor":"alice"}`,
		`not json`,
		``,
	}
	for _, body := range bad {
		rec := do(t, h, http.MethodPost, "/v1/acme/integrity/autofix", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "validation", errorKind(t, rec), body)
	}
}

func TestRulesRouteAndAuth(t *testing.T) {
	h := NewRouter(&fakeService{}, Options{APIKeys: map[string]string{"acme": "secret"}})

	rec := do(t, h, http.MethodGet, "/v1/acme/integrity/rules", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/globex/integrity/rules", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/acme/integrity/rules", "", "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []domain.RuleInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Fixable)

	rec = do(t, h, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitedRoute(t *testing.T) {
	h := NewRouter(&fakeService{}, Options{RateLimiter: middleware.NewRateLimiter(0.01, 1)})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/acme/integrity/rules", "").Code)
	rec := do(t, h, http.MethodGet, "/v1/acme/integrity/rules", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorKind(t, rec))
}

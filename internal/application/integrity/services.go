package integrity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bryanwahyu/automaton-integrity/internal/application"
	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/monitoring"
)

const (
	DefaultScanDeadline = 2 * time.Minute
	persistTimeout      = 15 * time.Second
)

// Service implements the integrity use-cases.
// Safe for concurrent use; per-tenant exclusion is handled by the coordinator.
type Service struct {
	Store   domain.IssueStore
	Archive domain.ReportArchive // optional

	registry    *domain.Registry
	scanner     *ScanEngine
	fixer       *AutoFixEngine
	coordinator *ScanCoordinator
	deadline    time.Duration
}

// Deps bundles the collaborators NewService wires together.
type Deps struct {
	Rules   *domain.Registry
	Data    domain.DataResolver
	Store   domain.IssueStore
	Audit   domain.AuditSink
	Archive domain.ReportArchive
	Clock   domain.Clock
	IDs     domain.IDGenerator

	Concurrency  int
	RuleTimeout  time.Duration
	ScanDeadline time.Duration
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = application.SystemClock{}
	}
	if d.IDs == nil {
		d.IDs = application.UUIDGenerator{}
	}
	if d.ScanDeadline <= 0 {
		d.ScanDeadline = DefaultScanDeadline
	}
	return &Service{
		Store:    d.Store,
		Archive:  d.Archive,
		registry: d.Rules,
		scanner: &ScanEngine{
			Rules:       d.Rules,
			Data:        d.Data,
			Clock:       d.Clock,
			IDs:         d.IDs,
			Concurrency: d.Concurrency,
			RuleTimeout: d.RuleTimeout,
		},
		fixer: &AutoFixEngine{
			Rules:       d.Rules,
			Data:        d.Data,
			Store:       d.Store,
			Audit:       d.Audit,
			Clock:       d.Clock,
			IDs:         d.IDs,
			RuleTimeout: d.RuleTimeout,
		},
		coordinator: NewScanCoordinator(),
		deadline:    d.ScanDeadline,
	}
}

// RunScan runs a full scan, saves it as the tenant's latest report and returns it.
func (s *Service) RunScan(ctx context.Context, tenantID, triggeredBy string) (*domain.ScanReport, error) {
	if tenantID == "" {
		return nil, domain.Errorf(domain.KindValidation, "run scan", "tenant id is required")
	}
	if triggeredBy == "" {
		triggeredBy = "manual"
	}

	var report *domain.ScanReport
	err := s.coordinator.Do(tenantID, "scan", func() error {
		start := time.Now()
		sctx, cancel := s.withDeadline(ctx)
		defer cancel()

		r, err := s.scanner.RunFullScan(sctx, tenantID, triggeredBy)
		if err != nil {
			return err
		}

		// the scan deadline may already be gone; the report still gets saved
		pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer pcancel()
		if err := s.Store.Save(pctx, r); err != nil {
			slog.Error("save scan report", "tenant", tenantID, "report", r.ID, "err", err)
			return domain.NewError(domain.KindPersistence, "save report", err)
		}
		s.archive(pctx, r)

		monitoring.ScanDuration.Observe(time.Since(start).Seconds())
		slog.Info("scan finished", "tenant", tenantID, "report", r.ID,
			"issues", r.Summary.TotalIssues, "skipped", len(r.Summary.Skipped), "duration_ms", r.Summary.DurationMS)
		report = r
		return nil
	})
	s.countScan(err)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// GetLatestReport returns the most recent report or a not_found error.
func (s *Service) GetLatestReport(ctx context.Context, tenantID string) (*domain.ScanReport, error) {
	r, err := s.Store.Latest(ctx, tenantID)
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "latest report", err)
	}
	if r == nil {
		return nil, domain.Errorf(domain.KindNotFound, "latest report", "no scan report for tenant %s", tenantID)
	}
	return r, nil
}

func (s *Service) GetHistory(ctx context.Context, tenantID string, limit int) ([]domain.ScanHistoryEntry, error) {
	h, err := s.Store.History(ctx, tenantID, limit)
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "history", err)
	}
	if h == nil {
		h = []domain.ScanHistoryEntry{}
	}
	return h, nil
}

// AutoFix shares the tenant slot with RunScan so a fix never races a scan.
func (s *Service) AutoFix(ctx context.Context, tenantID string, issueIDs []string, actor string) (*domain.FixOutcome, error) {
	var out *domain.FixOutcome
	err := s.coordinator.Do(tenantID, "autofix", func() error {
		o, err := s.fixer.AutoFix(ctx, tenantID, issueIDs, actor)
		if err != nil {
			return err
		}
		slog.Info("autofix finished", "tenant", tenantID, "actor", actor,
			"fixed", len(o.Fixed), "auto_resolved", len(o.AutoResolved), "failed", len(o.Failed), "skipped", len(o.Skipped))
		out = o
		return nil
	})
	if errors.Is(err, domain.ErrConcurrency) {
		monitoring.ConcurrencyRejections.WithLabelValues("autofix").Inc()
	}
	return out, err
}

// Rules lists the registered rules in evaluation order.
func (s *Service) Rules() []domain.RuleInfo {
	return s.registry.Infos()
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.deadline)
}

// archive is best effort; the database copy is authoritative.
func (s *Service) archive(ctx context.Context, r *domain.ScanReport) {
	if s.Archive == nil {
		return
	}
	url, err := s.Archive.Put(ctx, r)
	if err != nil {
		slog.Error("archive scan report", "tenant", r.TenantID, "report", r.ID, "err", err)
		return
	}
	slog.Debug("scan report archived", "tenant", r.TenantID, "report", r.ID, "url", url)
}

func (s *Service) countScan(err error) {
	switch {
	case err == nil:
		monitoring.ScansTotal.WithLabelValues("success").Inc()
	case errors.Is(err, domain.ErrConcurrency):
		monitoring.ScansTotal.WithLabelValues("rejected").Inc()
		monitoring.ConcurrencyRejections.WithLabelValues("scan").Inc()
	default:
		monitoring.ScansTotal.WithLabelValues("failed").Inc()
	}
}

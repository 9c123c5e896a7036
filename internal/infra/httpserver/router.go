package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/middleware"
)

// IntegrityService is the use-case surface the router needs.
type IntegrityService interface {
	RunScan(ctx context.Context, tenantID, triggeredBy string) (*domain.ScanReport, error)
	GetLatestReport(ctx context.Context, tenantID string) (*domain.ScanReport, error)
	GetHistory(ctx context.Context, tenantID string, limit int) ([]domain.ScanHistoryEntry, error)
	AutoFix(ctx context.Context, tenantID string, issueIDs []string, actor string) (*domain.FixOutcome, error)
	Rules() []domain.RuleInfo
}

type Options struct {
	APIKeys        map[string]string
	RateLimiter    *middleware.RateLimiter
	HealthCheckers map[string]middleware.HealthChecker
	AllowedOrigins []string
}

type Router struct {
	svc IntegrityService
	v   *validator.Validate
}

func NewRouter(svc IntegrityService, opts Options) http.Handler {
	r := &Router{svc: svc, v: validator.New()}
	mux := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	health := middleware.HealthHandler(opts.HealthCheckers)
	mux.Get("/health", health)
	mux.Get("/readyz", health)
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Handle("/metrics", middleware.MetricsHandler())

	mux.Route("/v1/{tenant}/integrity", func(rt chi.Router) {
		rt.Use(middleware.RequireTenant)
		rt.Post("/scans", r.wrap(r.handleRunScan))
		rt.Get("/scans/latest", r.wrap(r.handleLatest))
		rt.Get("/scans/history", r.wrap(r.handleHistory))
		rt.Post("/autofix", r.wrap(r.handleAutoFix))
		rt.Get("/rules", r.wrap(r.handleRules))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks decode and body validation failures.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, kind := statusFor(err)
		if status >= 500 {
			slog.Error("request failed", "path", req.URL.Path, "kind", kind, "err", err)
		}
		writeJSON(w, status, middleware.ErrorBody{Error: kind, Message: err.Error()})
	}
}

func statusFor(err error) (int, string) {
	var br badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest, string(domain.KindValidation)
	}
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest, string(kind)
	case domain.KindNotFound:
		return http.StatusNotFound, string(kind)
	case domain.KindConcurrency:
		return http.StatusConflict, string(kind)
	case domain.KindPersistence:
		return http.StatusServiceUnavailable, string(kind)
	case "":
		return http.StatusInternalServerError, "internal"
	}
	return http.StatusInternalServerError, string(kind)
}

// POST /v1/{tenant}/integrity/scans
// Body (optional): {"triggered_by": "<who>"}
func (r *Router) handleRunScan(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	var body struct {
		TriggeredBy string `json:"triggered_by" validate:"omitempty,max=128"`
	}
	if err := r.decode(req, &body, true); err != nil {
		return err
	}
	by := middleware.SanitizeString(body.TriggeredBy)
	if by == "" {
		by = "api"
	}

	rep, err := r.svc.RunScan(req.Context(), tenant, by)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rep)
	return nil
}

// GET /v1/{tenant}/integrity/scans/latest
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	rep, err := r.svc.GetLatestReport(req.Context(), chi.URLParam(req, "tenant"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rep)
	return nil
}

// GET /v1/{tenant}/integrity/scans/history?limit=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"))
	if err != nil {
		return badRequest{err}
	}
	h, err := r.svc.GetHistory(req.Context(), chi.URLParam(req, "tenant"), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, h)
	return nil
}

// POST /v1/{tenant}/integrity/autofix
// Body: {"issue_ids": ["..."], "actor": "<who>"}
func (r *Router) handleAutoFix(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		IssueIDs []string `json:"issue_ids" validate:"required,min=1,max=500,dive,required"`
		Actor    string   `json:"actor" validate:"required,max=128"`
	}
	if err := r.decode(req, &body, false); err != nil {
		return err
	}
	out, err := r.svc.AutoFix(req.Context(), chi.URLParam(req, "tenant"), body.IssueIDs, middleware.SanitizeString(body.Actor))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// GET /v1/{tenant}/integrity/rules
func (r *Router) handleRules(w http.ResponseWriter, req *http.Request) error {
	writeJSON(w, http.StatusOK, r.svc.Rules())
	return nil
}

func (r *Router) decode(req *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return badRequest{errors.New("invalid JSON body: " + strings.TrimPrefix(err.Error(), "json: "))}
		}
	}
	if err := r.v.Struct(dst); err != nil {
		return badRequest{err}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}

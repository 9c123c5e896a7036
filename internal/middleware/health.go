package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	readinessBudget = 5 * time.Second
	pingBudget      = 2 * time.Second
)

// HealthChecker reports whether one backing dependency of the integrity service
// (report database, archive bucket) can currently be reached.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping method such as the archive client's to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// PingDB checks the shared report/document database with its own short deadline
// so one slow pool does not eat the whole readiness budget.
func PingDB(db *sql.DB) HealthChecker {
	return CheckFunc(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, pingBudget)
		defer cancel()
		return db.PingContext(ctx)
	})
}

// HealthStatus is the readiness body. Checks is keyed by dependency name.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler pings every dependency in parallel and answers 503 if any is down.
// Scans and autofix need all of them, so there is no partial-ready state.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessBudget)
		defer cancel()

		status := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]CheckStatus, len(checkers)),
		}
		var mu sync.Mutex
		var g errgroup.Group
		for name, checker := range checkers {
			name, checker := name, checker
			g.Go(func() error {
				st := CheckStatus{Status: "healthy"}
				if err := checker.Check(ctx); err != nil {
					st = CheckStatus{Status: "unhealthy", Message: err.Error()}
				}
				mu.Lock()
				status.Checks[name] = st
				if st.Status != "healthy" {
					status.Status = "unhealthy"
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

// LivenessHandler only proves the process is serving; it never touches dependencies.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

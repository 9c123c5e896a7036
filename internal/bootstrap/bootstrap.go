// Package bootstrap wires config into a ready Service. Shared by the API and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/bryanwahyu/automaton-integrity/internal/application"
	appintegrity "github.com/bryanwahyu/automaton-integrity/internal/application/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/config"
	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity/rules"
	mysqlp "github.com/bryanwahyu/automaton-integrity/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/automaton-integrity/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-integrity/internal/infra/memory"
	minioStore "github.com/bryanwahyu/automaton-integrity/internal/infra/storage"
	"github.com/bryanwahyu/automaton-integrity/internal/middleware"
)

type App struct {
	Service  *appintegrity.Service
	Checkers map[string]middleware.HealthChecker
	// Documents is set only for the memory driver.
	Documents *memory.DocumentStore

	db *sql.DB
}

type ports struct {
	data  integrity.DataResolver
	store integrity.IssueStore
	audit integrity.AuditSink
}

// Build connects the configured backends and assembles the Service.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Checkers: map[string]middleware.HealthChecker{}}

	var p ports
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := mysqlp.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("mysql migrate: %w", err)
			}
		}
		app.db = db
		p = ports{mysqlp.NewDocumentStore(db), mysqlp.NewIssueStore(db), mysqlp.NewAuditRepository(db)}
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := pgp.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		app.db = db
		p = ports{pgp.NewDocumentStore(db), pgp.NewIssueStore(db), pgp.NewAuditRepository(db)}
	case "memory":
		slog.Warn("using in-memory storage, nothing survives a restart")
		app.Documents = memory.NewDocumentStore()
		p = ports{app.Documents, memory.NewIssueStore(), memory.NewAuditSink()}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if app.db != nil {
		app.Checkers["database"] = middleware.PingDB(app.db)
	}

	deps := appintegrity.Deps{
		Rules:        rules.Default(),
		Data:         p.data,
		Store:        p.store,
		Audit:        p.audit,
		Clock:        application.SystemClock{},
		IDs:          application.UUIDGenerator{},
		Concurrency:  cfg.Scan.Concurrency,
		RuleTimeout:  cfg.Scan.RuleTimeout.Duration,
		ScanDeadline: cfg.Scan.Deadline.Duration,
	}

	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		deps.Archive = store
		app.Checkers["archive"] = middleware.CheckFunc(store.Ping)
	}

	app.Service = appintegrity.NewService(deps)
	return app, nil
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

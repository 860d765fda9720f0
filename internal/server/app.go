// Package server initializes and runs the data service: it opens the
// database, applies migrations and wires the repositories, the credential
// resolver and the domain services together.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/auth"
	"github.com/loobric/smooth-core/internal/server/config"
	"github.com/loobric/smooth-core/internal/server/repositories/repomanager"
	"github.com/loobric/smooth-core/internal/server/services"
)

// App owns the process-wide dependencies and exposes the assembled
// services to whatever surface hosts them.
type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	AuthPolicy auth.Policy
	Resolver   *auth.Resolver

	Users    *services.UserService
	Grants   *services.GrantService
	Versions *services.VersionService
	Queries  *services.QueryService
	Bulk     *services.BulkService
	Changes  *services.ChangeFeedService
	History  *services.HistoryService
	Audit    *services.AuditService
	Backups  *services.BackupService
}

// NewApp opens the database, runs migrations and wires all services.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	audit := services.NewAuditService(db, m, logger)
	versions := services.NewVersionService(db, m, logger)

	app := &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		AuthPolicy: auth.Policy{Enabled: cfg.AuthEnabled},
		Resolver:   auth.NewResolver(db, m, []byte(cfg.SecretKey)),
		Users:      services.NewUserService(db, m, cfg, logger),
		Grants:     services.NewGrantService(db, m, logger),
		Versions:   versions,
		Queries:    services.NewQueryService(versions, audit, cfg.ListMaxLimit, logger),
		Bulk:       services.NewBulkService(versions, audit, logger),
		Changes:    services.NewChangeFeedService(db, m, cfg.ChangeFeedMaxLimit, logger),
		History:    services.NewHistoryService(db, m, versions, audit, logger),
		Audit:      audit,
		Backups:    services.NewBackupService(db, m, cfg, logger),
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the context is cancelled or a termination signal
// arrives, then closes the database.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	<-ctx.Done()

	app.logger.Info(ctx, "Shutting down...")

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}

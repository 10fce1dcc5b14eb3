package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/secretbot/core/config"
	coredatabase "github.com/m3rciful/secretbot/core/database"
	"github.com/m3rciful/secretbot/core/logger"
	"github.com/m3rciful/secretbot/core/users"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil for the memory driver.
	DB       *sqlx.DB
	Store    users.Store
	Migrator *coredatabase.Migrator
}

// Close releases the database connection, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, selects the user store and, when configured, applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	migrator := coredatabase.NewMigratorWith(opts.Database, opts.Migrate)

	if opts.Database.Driver == coredatabase.DriverMemory {
		logger.DB.Warn("using in-memory user store",
			slog.String("event", "db.connect"),
			slog.String("driver", coredatabase.DriverMemory),
		)
		return &Result{Store: users.NewMemoryStore(), Migrator: migrator}, nil
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	if opts.Database.MigrateOnStart {
		if err := migrator.EnsureSchema(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("bootstrap: migrations failed: %w", err), db.Close())
		}
	}

	return &Result{DB: db, Store: users.NewPostgresStore(db), Migrator: migrator}, nil
}

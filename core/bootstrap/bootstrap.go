package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/mensabot/core/config"
	coredatabase "github.com/m3rciful/mensabot/core/database"
	"github.com/m3rciful/mensabot/core/logger"
)

// Options control the generic bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	// WaitReady blocks until a postgres server answers; it runs before
	// Connect, which fails fast.
	WaitReady func(ctx context.Context, cfg coredatabase.Config, timeout time.Duration) error
	Connect   func(coredatabase.Config) (*sqlx.DB, error)
	Migrate   func(coredatabase.Config) error
}

const readyTimeout = 30 * time.Second

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when the storage driver keeps dialogues in memory.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger and, for persistent storage drivers, connects
// to the database and applies migrations.
func Run(opts Options) (*Result, error) {
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

	if !opts.Database.Persistent() {
		logger.Or(logger.DB).Info("dialogue storage in memory",
			slog.String("event", "db.skip"),
			slog.String("driver", coredatabase.DriverMemory),
		)
		return &Result{}, nil
	}

	if opts.Database.Driver == coredatabase.DriverPostgres {
		wait := opts.WaitReady
		if wait == nil {
			wait = coredatabase.WaitForPostgres
		}
		if err := wait(context.Background(), opts.Database, readyTimeout); err != nil {
			return nil, fmt.Errorf("bootstrap: database not ready: %w", err)
		}
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{DB: db}, nil
}

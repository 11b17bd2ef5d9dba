package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/m3rciful/mensabot/core/logger"
)

// Connect opens the configured database, sizes the pool, and verifies
// connectivity. The memory driver has no database and returns an error.
func Connect(cfg Config) (*sqlx.DB, error) {
	driverName, dsn, target, err := cfg.open()
	if err != nil {
		return nil, err
	}
	log := logger.Or(logger.DB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	took := time.Since(start)
	if err != nil {
		log.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("driver", cfg.Driver),
			slog.String("db", target),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	log.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", cfg.Driver),
		slog.String("db", target),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return db, nil
}

func (c Config) open() (driverName, dsn, target string, err error) {
	switch c.Driver {
	case DriverPostgres:
		return "postgres", c.postgresDSN(), c.Host + ":" + c.Port + "/" + c.Name, nil
	case DriverSQLite:
		return "sqlite3", "file:" + c.SQLitePath + "?_busy_timeout=5000&_journal_mode=WAL", c.SQLitePath, nil
	}
	return "", "", "", fmt.Errorf("db connect: driver %q has no database", c.Driver)
}

// WaitForPostgres pings the database until it answers or timeout elapses.
func WaitForPostgres(ctx context.Context, cfg Config, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := retry.Do(
		func() error {
			db, err := sqlx.Open("postgres", cfg.postgresDSN())
			if err != nil {
				return retry.Unrecoverable(err)
			}
			defer func() { _ = db.Close() }()
			return db.PingContext(ctx)
		},
		retry.Attempts(15),
		retry.Delay(time.Second),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(500*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Or(logger.DB).Debug("db not ready",
				slog.String("event", "db.wait"),
				slog.Uint64("attempt", uint64(n)),
				slog.String("err", err.Error()),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("timeout reached waiting for database: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/circles-api/internal/config"
	"github.com/phrazzld/circles-api/internal/platform/memory"
	"github.com/phrazzld/circles-api/internal/platform/postgres"
	"github.com/phrazzld/circles-api/internal/store"
)

const databasePingTimeout = 5 * time.Second

type stores struct {
	users       store.UserStore
	circles     store.CircleStore
	goals       store.GoalStore
	microgrants store.MicrograntStore
}

// openDatabase connects to PostgreSQL, sizes the pool and optionally applies
// migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, databasePingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("database connection established",
		slog.Int("max_open_conns", cfg.MaxOpenConns))

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// setupStores returns the stores for the configured driver. db is nil for
// the memory driver.
func setupStores(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (stores, *sql.DB, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory storage, data is lost on restart")
		mem := memory.New()
		return stores{
			users:       mem.Users(),
			circles:     mem.Circles(),
			goals:       mem.Goals(),
			microgrants: mem.Microgrants(),
		}, nil, nil
	}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return stores{}, nil, err
	}
	return stores{
		users:       postgres.NewPostgresUserStore(db, logger),
		circles:     postgres.NewPostgresCircleStore(db, logger),
		goals:       postgres.NewPostgresGoalStore(db, logger),
		microgrants: postgres.NewPostgresMicrograntStore(db, logger),
	}, db, nil
}

// Package app wires configuration into the concrete stores shared by the
// server and the ngoctl command.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpattn/ngoreports/internal/config"
	"github.com/rpattn/ngoreports/internal/db"
	"github.com/rpattn/ngoreports/internal/repository"
	"github.com/rpattn/ngoreports/internal/repository/redisjob"
	"github.com/rpattn/ngoreports/internal/repository/sqlite"

	"github.com/redis/go-redis/v9"
)

// Stores holds the job and report repositories selected by configuration.
type Stores struct {
	Jobs    repository.JobRepository
	Reports repository.ReportRepository

	closers []func()
}

// Close releases every connection opened by OpenStores, newest first.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores connects to the configured backends and applies pending
// schema migrations.
func OpenStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stores := &Stores{}

	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, func() { conn.Close() })
		if err := db.RunSQLiteMigrations(conn); err != nil {
			stores.Close()
			return nil, err
		}
		stores.Jobs = sqlite.NewJobRepository(conn)
		stores.Reports = sqlite.NewReportRepository(conn)
		logger.Info("using sqlite storage", "path", cfg.SQLite.Path)

	default:
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, conn.Close)
		if err := db.RunMigrations(conn.Pool); err != nil {
			stores.Close()
			return nil, err
		}
		stores.Jobs = repository.NewJobRepository(conn.Pool)
		stores.Reports = repository.NewReportRepository(conn.Pool)
		logger.Info("using postgres storage", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	}

	if cfg.Jobs.Store == config.JobStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			stores.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		stores.closers = append(stores.closers, func() { client.Close() })
		stores.Jobs = redisjob.New(client, redisjob.WithTTL(cfg.Redis.JobTTL), redisjob.WithPrefix(cfg.Redis.Prefix))
		logger.Info("using redis job store", "addr", cfg.Redis.Addr)
	}

	return stores, nil
}

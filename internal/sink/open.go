package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/bizimport/internal/config"
	"github.com/JonMunkholm/bizimport/internal/importer"
)

// Open builds the sink selected by cfg.Sink.Driver. The returned function
// releases the sink's resources and must be called on shutdown.
func Open(ctx context.Context, cfg *config.Config) (importer.Sink, func(), error) {
	var (
		s       importer.Sink
		closeFn = func() {}
	)

	switch strings.ToLower(cfg.Sink.Driver) {
	case config.SinkPostgres:
		pool, err := connectPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		pg, err := NewPostgres(pool, cfg.Sink.Table)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		s, closeFn = pg, pool.Close

	case config.SinkSQLite:
		lite, err := OpenSQLite(ctx, cfg.Sink.SQLitePath, cfg.Sink.Table)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("sqlite sink ready", "path", cfg.Sink.SQLitePath, "table", cfg.Sink.Table)
		s, closeFn = lite, func() { _ = lite.Close() }

	case config.SinkLog:
		s = NewLog(nil)

	default:
		return nil, nil, fmt.Errorf("unknown sink driver %q", cfg.Sink.Driver)
	}

	return WithTimeout(s, cfg.Sink.CommitTimeout), closeFn, nil
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// WithTimeout bounds every commit of s by d. A non-positive d returns s.
func WithTimeout(s importer.Sink, d time.Duration) importer.Sink {
	if d <= 0 {
		return s
	}
	return importer.SinkFunc(func(ctx context.Context, batch importer.Batch) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return s.Commit(ctx, batch)
	})
}

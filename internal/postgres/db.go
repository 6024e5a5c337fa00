package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions configures the journal pool and its startup ping.
type PoolOptions struct {
	AppName     string
	MaxConns    int32
	PingRetries uint64
	RetryDelay  time.Duration
	Log         *slog.Logger
}

// Connect opens a pool and pings it, retrying while the database starts up.
func Connect(ctx context.Context, dsn string, o PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if o.MaxConns <= 0 {
		o.MaxConns = 4
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	cfg.MaxConns = o.MaxConns
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	if o.AppName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = o.AppName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	try := 0
	ping := func() error {
		try++
		err := pool.Ping(ctx)
		if err != nil {
			o.Log.WarnContext(ctx, "postgres not reachable", "attempt", try, "err", err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(o.RetryDelay), o.PingRetries), ctx)
	if err := backoff.Retry(ping, b); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping after %d attempts: %w", try, err)
	}
	return pool, nil
}

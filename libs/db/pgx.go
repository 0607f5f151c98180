package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agendly/agendly/libs/config"
)

type Pool struct {
	*pgxpool.Pool
}

// Open connects a pgx pool sized from the PG_* environment knobs. Defaults
// suit the per-service pools here: each service holds its own small pool
// against the shared scheduling database.
func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = int32(config.Int("PG_MAX_CONNS", 10))
	cfg.MinConns = int32(config.Int("PG_MIN_CONNS", 1))
	cfg.MaxConnLifetime = time.Duration(config.Int("PG_CONN_LIFETIME_MINUTES", 30)) * time.Minute
	cfg.MaxConnIdleTime = time.Duration(config.Int("PG_CONN_IDLE_MINUTES", 5)) * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
}

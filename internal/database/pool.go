package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/tradesim/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Execer is the subset of pgxpool.Pool used by EnsureSchema.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the simulator tables if they do not exist.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS quotes (
		symbol          TEXT             NOT NULL,
		datetime        TIMESTAMPTZ      NOT NULL,
		last_price      DOUBLE PRECISION,
		bid_price1      DOUBLE PRECISION,
		bid_volume1     BIGINT,
		ask_price1      DOUBLE PRECISION,
		ask_volume1     BIGINT,
		upper_limit     DOUBLE PRECISION,
		lower_limit     DOUBLE PRECISION,
		volume_multiple DOUBLE PRECISION NOT NULL DEFAULT 1,
		margin_rate     DOUBLE PRECISION NOT NULL DEFAULT 0,
		commission_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, datetime)
	)`,
	`CREATE INDEX IF NOT EXISTS quotes_datetime_idx ON quotes (datetime)`,
	`CREATE TABLE IF NOT EXISTS daily_snapshots (
		run_id          TEXT        NOT NULL,
		trading_day     DATE        NOT NULL,
		pre_balance     NUMERIC     NOT NULL,
		balance         NUMERIC     NOT NULL,
		available       NUMERIC     NOT NULL,
		margin          NUMERIC     NOT NULL,
		commission      NUMERIC     NOT NULL,
		close_profit    NUMERIC     NOT NULL,
		position_profit NUMERIC     NOT NULL,
		float_profit    NUMERIC     NOT NULL,
		risk_ratio      DOUBLE PRECISION NOT NULL,
		trade_count     INTEGER     NOT NULL,
		gap             BOOLEAN     NOT NULL DEFAULT FALSE,
		PRIMARY KEY (run_id, trading_day)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_trades (
		run_id       TEXT        NOT NULL,
		trade_id     TEXT        NOT NULL,
		order_id     TEXT        NOT NULL,
		trading_day  DATE        NOT NULL,
		symbol       TEXT        NOT NULL,
		direction    TEXT        NOT NULL,
		"offset"     TEXT        NOT NULL,
		volume       BIGINT      NOT NULL,
		price        NUMERIC     NOT NULL,
		commission   NUMERIC     NOT NULL,
		close_profit NUMERIC     NOT NULL,
		trade_time   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, trade_id)
	)`,
}

// EnsureSchema runs Schema in order.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/tradesim/internal/model"
)

// DefaultQuoteTable is the table read by PostgresSource.
const DefaultQuoteTable = "quotes"

// Querier is the subset of pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresConfig selects the quotes to replay.
type PostgresConfig struct {
	Table   string
	Symbols []string
	Start   time.Time // inclusive
	End     time.Time // exclusive
}

// PostgresSource streams quotes from a table ordered by datetime.
// Missing bid or ask prices (NULL) come through as absent sides.
type PostgresSource struct {
	db     Querier
	cfg    PostgresConfig
	logger *slog.Logger

	rows  pgx.Rows
	count int64
}

// NewPostgresSource creates a source. The query runs on the first Next.
func NewPostgresSource(db Querier, cfg PostgresConfig, logger *slog.Logger) *PostgresSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultQuoteTable
	}
	return &PostgresSource{db: db, cfg: cfg, logger: logger}
}

// Next implements Source.
func (s *PostgresSource) Next(ctx context.Context) (Event, error) {
	if s.rows == nil {
		query, args := s.buildQuery()
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return Event{}, fmt.Errorf("query quotes: %w", err)
		}
		s.rows = rows
		s.logger.Info("quote replay started",
			"table", s.cfg.Table,
			"symbols", len(s.cfg.Symbols),
			"start", s.cfg.Start,
			"end", s.cfg.End,
		)
	}

	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return Event{}, fmt.Errorf("iterate quotes: %w", err)
		}
		s.logger.Info("quote replay finished", "quotes", s.count)
		return Event{}, io.EOF
	}

	var q model.Quote
	if err := s.rows.Scan(
		&q.Symbol, &q.Datetime, &q.LastPrice,
		&q.BidPrice, &q.BidVolume, &q.AskPrice, &q.AskVolume,
		&q.UpperLimit, &q.LowerLimit,
		&q.Multiplier, &q.MarginRate, &q.CommissionRate,
	); err != nil {
		return Event{}, fmt.Errorf("scan quote: %w", err)
	}
	s.count++
	return QuoteEvent(q), nil
}

// Close releases the result set.
func (s *PostgresSource) Close() error {
	if s.rows != nil {
		s.rows.Close()
	}
	return nil
}

func (s *PostgresSource) buildQuery() (string, []any) {
	table := pgx.Identifier{s.cfg.Table}.Sanitize()
	query := `
		SELECT symbol, datetime,
			COALESCE(last_price, 0), COALESCE(bid_price1, 0), COALESCE(bid_volume1, 0),
			COALESCE(ask_price1, 0), COALESCE(ask_volume1, 0),
			COALESCE(upper_limit, 0), COALESCE(lower_limit, 0),
			volume_multiple, margin_rate, commission_rate
		FROM ` + table + `
		WHERE symbol = ANY($1)`
	args := []any{s.cfg.Symbols}

	if !s.cfg.Start.IsZero() {
		args = append(args, s.cfg.Start)
		query += fmt.Sprintf(" AND datetime >= $%d", len(args))
	}
	if !s.cfg.End.IsZero() {
		args = append(args, s.cfg.End)
		query += fmt.Sprintf(" AND datetime < $%d", len(args))
	}
	query += " ORDER BY datetime, symbol"
	return query, args
}

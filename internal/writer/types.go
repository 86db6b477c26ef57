package writer

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the scale money columns are rounded to.
const MoneyPlaces = 4

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
	}
}

// snapshotRow represents a row to be inserted into the daily_snapshots table.
type snapshotRow struct {
	RunID          string
	TradingDay     time.Time // DATE
	PreBalance     decimal.Decimal
	Balance        decimal.Decimal
	Available      decimal.Decimal
	Margin         decimal.Decimal
	Commission     decimal.Decimal
	CloseProfit    decimal.Decimal
	PositionProfit decimal.Decimal
	FloatProfit    decimal.Decimal
	RiskRatio      float64 // may be +Inf
	TradeCount     int
	Gap            bool
}

// tradeRow represents a row for the snapshot_trades table.
type tradeRow struct {
	RunID       string
	TradeID     string
	OrderID     string
	TradingDay  time.Time
	Symbol      string
	Direction   string
	Offset      string
	Volume      int64
	Price       decimal.Decimal
	Commission  decimal.Decimal
	CloseProfit decimal.Decimal
	TradeTime   time.Time
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

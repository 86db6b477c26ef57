package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/tradesim/internal/metrics"
	"github.com/rickgao/tradesim/internal/model"
)

// SnapshotSource yields settled trading days until it is closed.
// *dispatch.Buffer[model.DailySnapshot] satisfies it.
type SnapshotSource interface {
	ReceiveContext(ctx context.Context) (model.DailySnapshot, error)
}

// BatchSender is the subset of pgxpool.Pool the writers use.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const (
	insertSnapshotSQL = `
		INSERT INTO daily_snapshots (run_id, trading_day, pre_balance, balance, available, margin,
			commission, close_profit, position_profit, float_profit, risk_ratio, trade_count, gap)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id, trading_day) DO NOTHING`

	insertTradeSQL = `
		INSERT INTO snapshot_trades (run_id, trade_id, order_id, trading_day, symbol, direction,
			"offset", volume, price, commission, close_profit, trade_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, trade_id) DO NOTHING`
)

// SnapshotWriter consumes daily snapshots and writes them to the
// daily_snapshots and snapshot_trades tables.
type SnapshotWriter struct {
	cfg     WriterConfig
	runID   string
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Input from the dispatcher
	input SnapshotSource

	// Database
	db BatchSender

	// Batching (snapshot rows go before their trades)
	snapshots   []snapshotRow
	trades      []tradeRow
	batchMu     sync.Mutex
	flushMu     sync.Mutex // one batch in flight at a time
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	stats WriterMetrics
}

// NewSnapshotWriter creates a new SnapshotWriter. Rows are tagged with runID.
func NewSnapshotWriter(
	cfg WriterConfig,
	runID string,
	input SnapshotSource,
	db BatchSender,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &SnapshotWriter{
		cfg:     cfg,
		runID:   runID,
		input:   input,
		db:      db,
		metrics: m,
		logger:  logger.With("writer", "snapshot", "run_id", runID),
		done:    make(chan struct{}),
	}
}

// Start begins consuming snapshots and writing to the database.
func (w *SnapshotWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("snapshot writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Done is closed once the input is closed and everything it held is written.
func (w *SnapshotWriter) Done() <-chan struct{} {
	return w.done
}

// Stop gracefully shuts down the writer, flushing what is batched with ctx.
func (w *SnapshotWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping snapshot writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	stopped := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		w.logger.Info("snapshot writer stopped")
	case <-ctx.Done():
		w.logger.Warn("snapshot writer stop timed out")
	}

	w.flush(ctx)
	return nil
}

// Stats returns current metrics.
func (w *SnapshotWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop reads snapshots until the input closes or the writer stops.
func (w *SnapshotWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		snap, err := w.input.ReceiveContext(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			// Input closed: the run is over.
			w.flush(w.ctx)
			close(w.done)
			w.logger.Info("snapshot input drained")
			return
		}
		w.handleSnapshot(snap)
	}
}

// flushLoop periodically flushes the batch.
func (w *SnapshotWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleSnapshot transforms and adds a snapshot to the batch.
func (w *SnapshotWriter) handleSnapshot(snap model.DailySnapshot) {
	row, trades := w.transform(snap)

	w.batchMu.Lock()
	w.snapshots = append(w.snapshots, row)
	w.trades = append(w.trades, trades...)
	shouldFlush := len(w.snapshots)+len(w.trades) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a DailySnapshot to its rows.
func (w *SnapshotWriter) transform(snap model.DailySnapshot) (snapshotRow, []tradeRow) {
	a := snap.Account
	row := snapshotRow{
		RunID:          w.runID,
		TradingDay:     dateOnly(snap.TradingDay),
		PreBalance:     money(a.PreBalance),
		Balance:        money(a.Balance),
		Available:      money(a.Available),
		Margin:         money(a.Margin),
		Commission:     money(a.Commission),
		CloseProfit:    money(a.CloseProfit),
		PositionProfit: money(a.PositionProfit),
		FloatProfit:    money(a.FloatProfit),
		RiskRatio:      float64(a.RiskRatio),
		TradeCount:     len(snap.Trades),
		Gap:            snap.Gap,
	}

	trades := make([]tradeRow, len(snap.Trades))
	for i, t := range snap.Trades {
		trades[i] = tradeRow{
			RunID:       w.runID,
			TradeID:     t.TradeID,
			OrderID:     t.OrderID,
			TradingDay:  row.TradingDay,
			Symbol:      t.Symbol,
			Direction:   string(t.Direction),
			Offset:      string(t.Offset),
			Volume:      t.Volume,
			Price:       money(t.Price),
			Commission:  money(t.Commission),
			CloseProfit: money(t.CloseProfit),
			TradeTime:   t.TradeTime.UTC(),
		}
	}
	return row, trades
}

// flush writes the current batch to the database.
func (w *SnapshotWriter) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.snapshots) == 0 && len(w.trades) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	snapshots, trades := w.snapshots, w.trades
	w.snapshots, w.trades = nil, nil
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, snapshots, trades)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err,
			"snapshots", len(snapshots), "trades", len(trades))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		w.metrics.WriteError("snapshot")
		return
	}

	rows := len(snapshots) + len(trades)
	w.batchMu.Lock()
	w.stats.Inserts += int64(rows - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.metrics.RowsWritten("daily_snapshots", len(snapshots))
	w.metrics.RowsWritten("snapshot_trades", len(trades))

	w.logger.Debug("flushed snapshots",
		"snapshots", len(snapshots),
		"trades", len(trades),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *SnapshotWriter) batchInsert(ctx context.Context, snapshots []snapshotRow, trades []tradeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range snapshots {
		batch.Queue(insertSnapshotSQL,
			r.RunID, r.TradingDay, r.PreBalance, r.Balance, r.Available, r.Margin,
			r.Commission, r.CloseProfit, r.PositionProfit, r.FloatProfit,
			r.RiskRatio, r.TradeCount, r.Gap)
	}
	for _, r := range trades {
		batch.Queue(insertTradeSQL,
			r.RunID, r.TradeID, r.OrderID, r.TradingDay, r.Symbol, r.Direction,
			r.Offset, r.Volume, r.Price, r.Commission, r.CloseProfit, r.TradeTime)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range batch.Len() {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

// Package dispatch routes market events and order commands to per-symbol actors
// and hands the resulting diffs to the consumer on pull.
//
// The dispatcher runs one loop. It reads the feed only while a pull is pending,
// settles every elapsed trading day before routing the event that crossed the
// cutoff, and hands each message to the owning actor and waits for the reply,
// so the ledger is only ever touched by one goroutine at a time.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tradesim/internal/calendar"
	"github.com/rickgao/tradesim/internal/diff"
	"github.com/rickgao/tradesim/internal/feed"
	"github.com/rickgao/tradesim/internal/ledger"
	"github.com/rickgao/tradesim/internal/metrics"
	"github.com/rickgao/tradesim/internal/model"
	"github.com/rickgao/tradesim/internal/quote"
	"github.com/rickgao/tradesim/internal/settlement"
	"github.com/rickgao/tradesim/internal/stats"
)

// Option configures optional collaborators.
type Option func(*Dispatcher)

// WithMetrics records dispatcher activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher is the simulator's event loop.
type Dispatcher struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	ledger *ledger.Ledger
	settle *settlement.Processor
	cache  *quote.Cache
	events <-chan feed.Event

	universe map[string]struct{}
	commands chan command
	pulls    chan pullRequest
	diffs    *Buffer[diff.Diff]
	snaps    *Buffer[model.DailySnapshot]
	done     chan struct{}

	// Owned by the Run goroutine.
	actors   map[string]*actor
	orders   map[string]string // order id -> symbol
	pending  *pullRequest
	retry    []diff.Diff // batch an abandoned pull did not take
	feedDone bool
	finished bool
	clock    time.Time
	seq      int64
	wg       sync.WaitGroup

	mu     sync.RWMutex
	counts Stats
	report *stats.Report
}

// New creates a dispatcher over the events channel.
func New(cfg Config, l *ledger.Ledger, proc *settlement.Processor, events <-chan feed.Event, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Instruments) == 0 {
		return nil, ErrNoInstruments
	}
	if events == nil {
		return nil, ErrNilFeed
	}

	universe := make(map[string]struct{}, len(cfg.Instruments))
	for _, s := range cfg.Instruments {
		universe[s] = struct{}{}
	}
	for _, s := range cfg.Subscriptions {
		if _, ok := universe[s]; !ok {
			return nil, fmt.Errorf("%w: subscription %q", ErrUnknownSymbol, s)
		}
	}

	d := &Dispatcher{
		cfg:      cfg,
		logger:   logger,
		ledger:   l,
		settle:   proc,
		cache:    quote.NewCache(),
		events:   events,
		universe: universe,
		commands: make(chan command),
		pulls:    make(chan pullRequest),
		diffs:    NewBuffer[diff.Diff](cfg.DiffBufferSize),
		snaps:    NewBuffer[model.DailySnapshot](cfg.SnapshotBufferSize),
		done:     make(chan struct{}),
		actors:   make(map[string]*actor),
		orders:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run processes the feed and commands until the feed is exhausted and every
// diff has been pulled, or until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.shutdown()

	for _, s := range d.cfg.Subscriptions {
		d.subscribe(s)
	}

	d.logger.Info("dispatcher started",
		"instruments", len(d.universe),
		"subscriptions", len(d.cfg.Subscriptions),
		"init_balance", d.ledger.Account().InitBalance,
	)

	for {
		if d.finished && d.diffs.Len() == 0 && len(d.retry) == 0 {
			d.logger.Info("dispatcher finished", "diffs_delivered", d.Stats().DiffsDelivered)
			return nil
		}

		// The feed is only read on behalf of a waiting consumer.
		var events <-chan feed.Event
		if d.pending != nil && !d.feedDone {
			events = d.events
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-d.pulls:
			d.pending = &req

		case cmd := <-d.commands:
			d.handleCommand(cmd)

		case ev, ok := <-events:
			if !ok {
				d.feedDone = true
				if err := d.finish(); err != nil {
					return err
				}
				break
			}
			if err := d.handleEvent(ev); err != nil {
				return err
			}
		}

		d.flush()
	}
}

// Pull blocks until diffs are available and returns the next batch.
// It returns ErrClosed once the run is over and everything was delivered.
func (d *Dispatcher) Pull(ctx context.Context) ([]diff.Diff, error) {
	// reply is unbuffered so a batch is either taken here or kept by the loop.
	req := pullRequest{done: ctx.Done(), reply: make(chan []diff.Diff)}

	select {
	case d.pulls <- req:
	case <-d.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case batch := <-req.reply:
		return batch, nil
	case <-d.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InsertOrder submits an order and returns its id. Rejections arrive as
// FINISHED order diffs, never as errors.
func (d *Dispatcher) InsertOrder(ctx context.Context, req InsertOrderRequest) (string, error) {
	if req.OrderID == "" {
		req.OrderID = uuid.NewString()
	}
	if err := d.send(ctx, command{kind: cmdInsert, insert: req}); err != nil {
		return "", err
	}
	return req.OrderID, nil
}

// CancelOrder asks for an order to be cancelled.
func (d *Dispatcher) CancelOrder(ctx context.Context, orderID string) error {
	return d.send(ctx, command{kind: cmdCancel, orderID: orderID})
}

// Subscribe starts routing quotes of the given symbols.
func (d *Dispatcher) Subscribe(ctx context.Context, symbols ...string) error {
	return d.send(ctx, command{kind: cmdSubscribe, symbols: symbols})
}

// Snapshots is the stream of settled days, closed when the run ends.
func (d *Dispatcher) Snapshots() *Buffer[model.DailySnapshot] {
	return d.snaps
}

// Report returns the final statistics once the feed is exhausted.
func (d *Dispatcher) Report() (stats.Report, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.report == nil {
		return stats.Report{}, false
	}
	return *d.report, true
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.counts
	s.DiffBuffer = d.diffs.Stats()
	return s
}

func (d *Dispatcher) send(ctx context.Context, cmd command) error {
	select {
	case d.commands <- cmd:
		return nil
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) count(fn func(s *Stats)) {
	d.mu.Lock()
	fn(&d.counts)
	d.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Feed
// -----------------------------------------------------------------------------

func (d *Dispatcher) handleEvent(ev feed.Event) error {
	d.metrics.FeedEvent(ev.Kind.String())

	settled, err := d.settle.Advance(ev.At, d.expireOrders)
	d.emitSettlements(settled)
	if err != nil {
		return fmt.Errorf("advance settlement: %w", err)
	}
	if ev.At.After(d.clock) {
		d.clock = ev.At
	}
	d.count(func(s *Stats) { s.EventsProcessed++ })

	if ev.Kind != feed.KindQuote {
		d.count(func(s *Stats) { s.Markers++ })
		return nil
	}

	d.settle.Touch()
	q := ev.Quote
	if !d.cache.Update(q) {
		d.count(func(s *Stats) { s.QuotesIgnored++ })
		return nil
	}

	d.call(d.actors[q.Symbol], actorMsg{
		kind:       msgQuote,
		quote:      q,
		at:         ev.At,
		tradingDay: d.settle.Day().Date,
	})
	d.count(func(s *Stats) { s.QuotesRouted++ })
	return nil
}

// expireOrders runs while a day is settling: every resting order of the day
// is cancelled before the ledger rolls over.
func (d *Dispatcher) expireOrders(day calendar.Day) {
	for _, symbol := range slices.Sorted(maps.Keys(d.actors)) {
		d.call(d.actors[symbol], actorMsg{kind: msgEndOfDay, at: day.Cutoff, tradingDay: day.Date})
	}
}

func (d *Dispatcher) emitSettlements(settled []settlement.Settlement) {
	for _, s := range settled {
		snap := s.Snapshot
		if snap.Gap {
			d.push(diff.Notification(diff.LevelWarning, diff.CodeSettlementGap,
				fmt.Sprintf("trading day %s had no events", snap.TradingDay.Format("2006-01-02"))))
		}
		d.push(diff.Snapshot(snap))
		for _, p := range s.Delta.Positions {
			d.push(diff.Position(p))
		}
		d.push(diff.Account(s.Delta.Account))

		d.snaps.Send(snap)
		d.metrics.Settlement(snap.Gap, snap.Account.Balance, snap.Account.RiskRatio.Float())
		d.count(func(st *Stats) {
			st.Settlements++
			if snap.Gap {
				st.Gaps++
			}
		})
	}
}

// finish settles the last open day and publishes the report.
func (d *Dispatcher) finish() error {
	s, ok, err := d.settle.Settle(d.expireOrders)
	if err != nil {
		return fmt.Errorf("settle final day: %w", err)
	}
	if ok {
		d.emitSettlements([]settlement.Settlement{s})
	}

	report := stats.Compute(d.settle.Snapshots(), d.ledger.Account().InitBalance, d.cfg.RiskFreeRate)
	d.push(diff.Report(report))
	d.push(diff.Notification(diff.LevelInfo, diff.CodeRunFinished,
		fmt.Sprintf("run finished after %d trading days", report.TradingDays)))

	d.mu.Lock()
	d.report = &report
	d.counts.Finished = true
	d.mu.Unlock()
	d.finished = true
	d.snaps.Close()

	d.logger.Info("simulation finished",
		"trading_days", report.TradingDays,
		"balance", report.FinalBalance,
		"ror", report.TotalReturn,
		"max_drawdown", report.MaxDrawdown,
		"sharpe", report.SharpeRatio.Float(),
	)
	return nil
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

func (d *Dispatcher) handleCommand(cmd command) {
	if d.finished {
		d.logger.Warn("command ignored after run finished", "kind", cmd.kind)
		return
	}
	switch cmd.kind {
	case cmdInsert:
		d.insert(cmd.insert)
	case cmdCancel:
		d.cancel(cmd.orderID)
	case cmdSubscribe:
		for _, s := range cmd.symbols {
			if _, ok := d.universe[s]; !ok {
				d.push(diff.Notification(diff.LevelWarning, diff.CodeUnknownSymbol, s))
				continue
			}
			d.subscribe(s)
		}
	}
}

func (d *Dispatcher) insert(req InsertOrderRequest) {
	if _, dup := d.orders[req.OrderID]; dup {
		d.push(diff.Notification(diff.LevelWarning, diff.CodeDuplicateOrder,
			fmt.Sprintf("%s: %s", model.RejectDuplicateOrderID, req.OrderID)))
		d.count(func(s *Stats) { s.OrdersRejected++ })
		return
	}

	d.seq++
	o := &model.Order{
		OrderID:     req.OrderID,
		Symbol:      req.Symbol,
		Direction:   req.Direction,
		Offset:      req.Offset,
		PriceType:   req.PriceType,
		LimitPrice:  req.LimitPrice,
		VolumeOrign: req.Volume,
		VolumeLeft:  req.Volume,
		InsertTime:  d.clock,
		Seqno:       d.seq,
	}
	d.orders[o.OrderID] = o.Symbol
	d.settle.Touch()
	d.count(func(s *Stats) { s.OrdersInserted++ })

	if reason := d.validate(o); reason != "" {
		o.Finish(reason)
		d.push(diff.Order(*o))
		d.metrics.OrderOutcome(metrics.OutcomeRejected)
		d.count(func(s *Stats) { s.OrdersRejected++ })
		return
	}

	a := d.subscribe(o.Symbol)
	d.call(a, actorMsg{kind: msgInsert, order: o, at: d.clock, tradingDay: d.settle.Day().Date})
}

// validate checks what can be decided without a quote.
func (d *Dispatcher) validate(o *model.Order) string {
	if _, ok := d.universe[o.Symbol]; !ok {
		return model.RejectUnknownSymbol
	}
	if o.VolumeOrign <= 0 {
		return model.RejectInvalidVolume
	}
	switch {
	case o.Direction != model.DirectionBuy && o.Direction != model.DirectionSell,
		o.Offset != model.OffsetOpen && o.Offset != model.OffsetClose && o.Offset != model.OffsetCloseToday,
		o.PriceType != model.PriceTypeLimit && o.PriceType != model.PriceTypeAny:
		return model.RejectInvalidOrder
	}
	if o.PriceType == model.PriceTypeLimit && !(o.LimitPrice > 0) {
		return model.RejectPriceOutOfRange
	}
	return ""
}

func (d *Dispatcher) cancel(id string) {
	symbol, ok := d.orders[id]
	if !ok {
		d.push(diff.Notification(diff.LevelWarning, diff.CodeOrderNotFound, id))
		return
	}
	a, ok := d.actors[symbol]
	if !ok {
		d.push(diff.Notification(diff.LevelInfo, diff.CodeCancelNoop, id+": already finished"))
		return
	}
	d.call(a, actorMsg{kind: msgCancel, orderID: id, at: d.clock})
}

// subscribe starts routing quotes for symbol, creating its actor on first use.
func (d *Dispatcher) subscribe(symbol string) *actor {
	a, ok := d.actors[symbol]
	if !ok {
		a = newActor(symbol, d.ledger, d.logger)
		d.actors[symbol] = a
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			a.run()
		}()
		d.mu.Lock()
		d.counts.Actors = len(d.actors)
		d.mu.Unlock()
	}
	if d.cache.Subscribe(symbol) {
		d.call(a, actorMsg{kind: msgSubscribe})
		d.logger.Info("symbol subscribed", "symbol", symbol)
	}
	return a
}

// call hands msg to the actor and waits for it to finish.
func (d *Dispatcher) call(a *actor, msg actorMsg) {
	a.inbox <- msg
	r := <-a.reply

	for _, df := range r.diffs {
		d.push(df)
		if df.Kind == diff.KindTrade {
			d.metrics.Trade()
			d.count(func(s *Stats) { s.Trades++ })
		}
	}
	for _, outcome := range r.outcomes {
		d.metrics.OrderOutcome(outcome)
		if outcome == metrics.OutcomeRejected {
			d.count(func(s *Stats) { s.OrdersRejected++ })
		}
	}
}

// -----------------------------------------------------------------------------
// Delivery
// -----------------------------------------------------------------------------

func (d *Dispatcher) push(df diff.Diff) {
	d.diffs.Send(df)
	d.metrics.Buffered(d.diffs.Len())
}

// flush answers the pending pull if there is anything to deliver.
func (d *Dispatcher) flush() {
	if d.pending == nil {
		return
	}
	req := d.pending
	select {
	case <-req.done:
		d.pending = nil
		return
	default:
	}
	if len(d.retry) == 0 && d.diffs.Len() == 0 {
		return
	}
	d.pending = nil

	batch := d.retry
	d.retry = nil
	if batch == nil {
		batch = d.diffs.DrainTo(d.cfg.MaxBatch)
	}

	select {
	case req.reply <- batch:
	case <-req.done:
		d.retry = batch
		d.logger.Debug("pull abandoned, batch kept", "diffs", len(batch))
		return
	}

	d.metrics.Delivered(len(batch))
	d.metrics.Buffered(d.diffs.Len())
	d.count(func(s *Stats) {
		s.Pulls++
		s.DiffsDelivered += int64(len(batch))
	})
}

func (d *Dispatcher) shutdown() {
	for _, a := range d.actors {
		close(a.inbox)
	}
	d.wg.Wait()
	d.snaps.Close()
	d.diffs.Close()
	close(d.done)
}

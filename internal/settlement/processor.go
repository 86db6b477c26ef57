// Package settlement runs the end-of-day state machine.
//
// Each trading day moves ACCUMULATING → SETTLING → ACCUMULATING (next day).
// A day settles exactly once, when the first event at or past its cutoff arrives
// or when the run ends. Days the event stream skipped entirely are settled out of
// band and flagged as gaps.
package settlement

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/tradesim/internal/calendar"
	"github.com/rickgao/tradesim/internal/ledger"
	"github.com/rickgao/tradesim/internal/model"
)

// State is the settlement phase of the open trading day.
type State int

const (
	StateAccumulating State = iota
	StateSettling
)

func (s State) String() string {
	if s == StateSettling {
		return "SETTLING"
	}
	return "ACCUMULATING"
}

// Settlement is the outcome of settling one day.
type Settlement struct {
	Snapshot model.DailySnapshot
	Delta    ledger.Delta
}

// BeforeSettle runs while the day is SETTLING, before the ledger rolls.
// The dispatcher uses it to expire the day's resting orders.
type BeforeSettle func(day calendar.Day)

// Processor settles trading days against a ledger.
type Processor struct {
	ledger *ledger.Ledger
	cal    calendar.Calendar
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	day       calendar.Day
	dirty     bool
	snapshots []model.DailySnapshot
	gaps      int
}

// NewProcessor creates a settlement processor.
func NewProcessor(l *ledger.Ledger, cal calendar.Calendar, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		ledger: l,
		cal:    cal,
		logger: logger,
	}
}

// Day returns the open trading day; zero before the first event.
func (p *Processor) Day() calendar.Day {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.day
}

// State returns the current phase.
func (p *Processor) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Gaps returns how many days were settled out of band.
func (p *Processor) Gaps() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gaps
}

// Snapshots returns the settled days in order.
func (p *Processor) Snapshots() []model.DailySnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.snapshots)
}

// Touch records activity in the open day.
func (p *Processor) Touch() {
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
}

// Advance moves the clock to t. The first call opens the trading day containing t;
// later calls settle every open day whose cutoff is at or before t.
func (p *Processor) Advance(t time.Time, before BeforeSettle) ([]Settlement, error) {
	p.mu.Lock()
	opened := !p.day.IsZero()
	p.mu.Unlock()

	if !opened {
		day, err := p.cal.TradingDay(t)
		if err != nil {
			return nil, fmt.Errorf("resolve trading day: %w", err)
		}
		p.mu.Lock()
		p.day = day
		p.mu.Unlock()
		p.logger.Debug("trading day opened", "trading_day", day.String(), "cutoff", day.Cutoff)
		return nil, nil
	}

	var out []Settlement
	for {
		p.mu.RLock()
		due := !t.Before(p.day.Cutoff)
		p.mu.RUnlock()
		if !due {
			return out, nil
		}

		s, err := p.settle(before)
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

// Settle settles the open day if anything happened in it since the last
// settlement. Calling it again without new activity is a no-op.
func (p *Processor) Settle(before BeforeSettle) (Settlement, bool, error) {
	p.mu.RLock()
	due := !p.day.IsZero() && p.dirty
	p.mu.RUnlock()
	if !due {
		return Settlement{}, false, nil
	}

	s, err := p.settle(before)
	if err != nil {
		return Settlement{}, false, err
	}
	return s, true, nil
}

func (p *Processor) settle(before BeforeSettle) (Settlement, error) {
	p.mu.Lock()
	p.state = StateSettling
	day := p.day
	gap := !p.dirty
	p.mu.Unlock()

	if before != nil {
		before(day)
	}

	snap, delta := p.ledger.Settle(day.Date)
	snap.Gap = gap

	next, err := p.cal.Next(day)

	p.mu.Lock()
	p.snapshots = append(p.snapshots, snap)
	if gap {
		p.gaps++
	}
	p.state = StateAccumulating
	if err == nil {
		p.day = next
		p.dirty = false
	}
	p.mu.Unlock()

	if gap {
		p.logger.Warn("settlement gap: trading day had no events",
			"trading_day", day.String(),
		)
	}
	p.logger.Info("trading day settled",
		"trading_day", day.String(),
		"balance", snap.Account.Balance,
		"trades", len(snap.Trades),
		"gap", gap,
	)

	if err != nil {
		return Settlement{}, fmt.Errorf("resolve next trading day after %s: %w", day, err)
	}
	return Settlement{Snapshot: snap, Delta: delta}, nil
}

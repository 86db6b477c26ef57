package ledger

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/tradesim/internal/model"
)

// Errors
var (
	ErrInvalidBalance       = errors.New("initial balance must be positive")
	ErrInsufficientFunds    = errors.New(model.RejectInsufficientFunds)
	ErrInsufficientPosition = errors.New(model.RejectInsufficientPosition)
)

// Delta carries copies of the entities a ledger operation changed.
type Delta struct {
	Account   model.Account
	Positions []model.Position
}

// Ledger is the account, its positions and the current day's trades.
// Mutations are expected from one goroutine at a time; the lock lets other
// goroutines read consistent copies.
type Ledger struct {
	mu        sync.RWMutex
	account   model.Account
	positions map[string]*model.Position
	trades    []model.Trade
	tradeSeq  int64

	// closedPositionProfit is the settled gain of carried lots closed today,
	// given back so close profit can be counted from the open price.
	closedPositionProfit float64
}

// New creates a ledger funded with initBalance.
func New(initBalance float64) (*Ledger, error) {
	if !(initBalance > 0) || math.IsInf(initBalance, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBalance, initBalance)
	}
	return &Ledger{
		account: model.Account{
			InitBalance: initBalance,
			PreBalance:  initBalance,
			Balance:     initBalance,
			Available:   initBalance,
		},
		positions: make(map[string]*model.Position),
	}, nil
}

// Account returns a copy of the account.
func (l *Ledger) Account() model.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.account
}

// Position returns a copy of one position.
func (l *Ledger) Position(symbol string, side model.Side) (model.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[model.PositionKey(symbol, side)]
	if !ok {
		return model.Position{}, false
	}
	return p.Clone(), true
}

// Positions returns copies of all positions ordered by key.
func (l *Ledger) Positions() []model.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positionsLocked()
}

// Trades returns the fills of the current trading day.
func (l *Ledger) Trades() []model.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.trades)
}

// Reserve checks an order against the account before it goes ALIVE.
// OPEN orders freeze margin sized at price; closing orders freeze volume.
func (l *Ledger) Reserve(o *model.Order, q *model.Quote, price float64) (Delta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !o.Closes() {
		mult := multiplier(q)
		vol := float64(o.VolumeLeft)
		margin := vol * mult * price * q.MarginRate
		commission := vol * mult * price * q.CommissionRate
		if margin+commission > l.account.Available {
			return Delta{}, ErrInsufficientFunds
		}
		o.FrozenMargin = margin
		l.account.FrozenMargin += margin
		l.recalc()
		return Delta{Account: l.account}, nil
	}

	pos, ok := l.positions[model.PositionKey(o.Symbol, o.PositionSide())]
	if !ok {
		return Delta{}, ErrInsufficientPosition
	}
	avail := pos.Volume - pos.FrozenVolume
	if o.Offset == model.OffsetCloseToday {
		avail = min(avail, pos.VolumeToday-pos.FrozenToday)
	}
	if o.VolumeLeft > avail {
		return Delta{}, ErrInsufficientPosition
	}
	pos.FrozenVolume += o.VolumeLeft
	if o.Offset == model.OffsetCloseToday {
		pos.FrozenToday += o.VolumeLeft
	}
	return Delta{Account: l.account, Positions: []model.Position{pos.Clone()}}, nil
}

// Release returns whatever Reserve froze for an order that will not fill.
func (l *Ledger) Release(o *model.Order) Delta {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.releaseLocked(o)
	l.recalc()
	d := Delta{Account: l.account}
	if pos != nil {
		d.Positions = []model.Position{pos.Clone()}
	}
	return d
}

func (l *Ledger) releaseLocked(o *model.Order) *model.Position {
	if !o.Closes() {
		l.account.FrozenMargin -= o.FrozenMargin
		if l.account.FrozenMargin < 0 {
			l.account.FrozenMargin = 0
		}
		o.FrozenMargin = 0
		return nil
	}

	pos, ok := l.positions[model.PositionKey(o.Symbol, o.PositionSide())]
	if !ok {
		return nil
	}
	pos.FrozenVolume = max(0, pos.FrozenVolume-o.VolumeLeft)
	if o.Offset == model.OffsetCloseToday {
		pos.FrozenToday = max(0, pos.FrozenToday-o.VolumeLeft)
	}
	return pos
}

// ApplyFill books a full fill of o at price. The order itself is not modified
// beyond clearing its frozen margin; the caller finishes it.
func (l *Ledger) ApplyFill(o *model.Order, price float64, q *model.Quote, at, tradingDay time.Time) (model.Trade, Delta) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.releaseLocked(o)

	mult := multiplier(q)
	vol := o.VolumeLeft
	commission := float64(vol) * mult * price * q.CommissionRate
	side := o.PositionSide()
	pos := l.position(o.Symbol, side)
	pos.Multiplier = mult

	var closeProfit float64
	if o.Closes() {
		var settled float64
		closeProfit, settled = closeLots(pos, vol, price, o.Offset == model.OffsetCloseToday)
		l.closedPositionProfit -= settled
	} else {
		pos.Lots = append(pos.Lots, model.Lot{
			Volume:        vol,
			OpenPrice:     price,
			PositionPrice: price,
			Margin:        float64(vol) * mult * price * q.MarginRate,
			Today:         true,
		})
		pos.Volume += vol
		pos.VolumeToday += vol
	}

	mark := price
	if q.HasLast() {
		mark = q.LastPrice
	}
	markPosition(pos, mark)

	l.account.CloseProfit += closeProfit
	l.account.Commission += commission
	l.recalc()

	l.tradeSeq++
	trade := model.Trade{
		TradeID:     fmt.Sprintf("%s|%d", o.OrderID, l.tradeSeq),
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Direction:   o.Direction,
		Offset:      o.Offset,
		Volume:      vol,
		Price:       price,
		Multiplier:  mult,
		Commission:  commission,
		CloseProfit: closeProfit,
		TradeTime:   at,
		TradingDay:  tradingDay,
	}
	l.trades = append(l.trades, trade)

	return trade, Delta{Account: l.account, Positions: []model.Position{pos.Clone()}}
}

// MarkToMarket revalues the symbol's positions at the quote's last price.
// It returns false when the symbol has no positions or no last price.
func (l *Ledger) MarkToMarket(q *model.Quote) (Delta, bool) {
	if !q.HasLast() {
		return Delta{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var changed []model.Position
	for _, side := range []model.Side{model.SideLong, model.SideShort} {
		pos, ok := l.positions[model.PositionKey(q.Symbol, side)]
		if !ok {
			continue
		}
		markPosition(pos, q.LastPrice)
		changed = append(changed, pos.Clone())
	}
	if len(changed) == 0 {
		return Delta{}, false
	}

	l.recalc()
	return Delta{Account: l.account, Positions: changed}, true
}

// Settle closes the trading day: it captures the snapshot, then rolls the
// account and positions into the next day.
func (l *Ledger) Settle(tradingDay time.Time) (model.DailySnapshot, Delta) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, pos := range l.positions {
		if pos.LastPrice > 0 {
			markPosition(pos, pos.LastPrice)
		}
	}
	l.recalc()

	snap := model.DailySnapshot{
		TradingDay: tradingDay,
		Account:    l.account,
		Positions:  l.positionsLocked(),
		Trades:     slices.Clone(l.trades),
	}

	l.account.PreBalance = l.account.Balance
	l.account.CloseProfit = 0
	l.account.Commission = 0
	l.closedPositionProfit = 0
	for _, pos := range l.positions {
		for i := range pos.Lots {
			if pos.LastPrice > 0 {
				pos.Lots[i].PositionPrice = pos.LastPrice
			}
			pos.Lots[i].Today = false
		}
		pos.VolumeToday = 0
		pos.FrozenToday = 0
		markPosition(pos, pos.LastPrice)
	}
	l.trades = nil
	l.recalc()

	return snap, Delta{Account: l.account, Positions: l.positionsLocked()}
}

func (l *Ledger) position(symbol string, side model.Side) *model.Position {
	key := model.PositionKey(symbol, side)
	pos, ok := l.positions[key]
	if !ok {
		pos = &model.Position{Symbol: symbol, Side: side}
		l.positions[key] = pos
	}
	return pos
}

func (l *Ledger) positionsLocked() []model.Position {
	keys := slices.Sorted(maps.Keys(l.positions))
	out := make([]model.Position, 0, len(keys))
	for _, k := range keys {
		out = append(out, l.positions[k].Clone())
	}
	return out
}

// recalc derives the account totals from positions. Must be called with lock held.
func (l *Ledger) recalc() {
	a := &l.account
	a.Margin, a.FloatProfit, a.MarketValue = 0, 0, 0
	a.PositionProfit = l.closedPositionProfit
	for _, pos := range l.positions {
		a.Margin += pos.Margin
		a.FloatProfit += pos.FloatProfit
		a.PositionProfit += pos.PositionProfit
		a.MarketValue += float64(pos.Volume) * pos.Multiplier * pos.LastPrice
	}
	a.Balance = a.PreBalance + a.CloseProfit + a.PositionProfit - a.Commission
	a.Available = a.Balance - a.Margin - a.FrozenMargin
	a.RiskRatio = riskRatio(a.Margin, a.Balance)
}

func riskRatio(margin, balance float64) model.Ratio {
	switch {
	case margin == 0:
		return 0
	case balance <= 0:
		return model.Ratio(math.Inf(1))
	}
	return model.Ratio(margin / balance)
}

// closeLots consumes lots FIFO. It returns the profit realized against the
// open price and the part of it already booked by earlier settlements.
func closeLots(pos *model.Position, vol int64, price float64, todayOnly bool) (profit, settled float64) {
	sign := sideSign(pos.Side)
	remaining := vol
	kept := pos.Lots[:0]
	for _, lot := range pos.Lots {
		if remaining == 0 || (todayOnly && !lot.Today) {
			kept = append(kept, lot)
			continue
		}
		take := min(remaining, lot.Volume)
		profit += (price - lot.OpenPrice) * sign * float64(take) * pos.Multiplier
		settled += (lot.PositionPrice - lot.OpenPrice) * sign * float64(take) * pos.Multiplier
		release := lot.Margin * float64(take) / float64(lot.Volume)
		lot.Margin -= release
		lot.Volume -= take
		remaining -= take
		pos.Volume -= take
		if lot.Today {
			pos.VolumeToday -= take
		}
		if lot.Volume > 0 {
			kept = append(kept, lot)
		}
	}
	pos.Lots = kept
	return profit, settled
}

// markPosition revalues a position at price. Must be called with lock held.
func markPosition(pos *model.Position, price float64) {
	sign := sideSign(pos.Side)
	pos.LastPrice = price

	var floatProfit, positionProfit, margin, openCost, posCost float64
	for _, lot := range pos.Lots {
		v := float64(lot.Volume)
		floatProfit += (price - lot.OpenPrice) * sign * v * pos.Multiplier
		positionProfit += (price - lot.PositionPrice) * sign * v * pos.Multiplier
		margin += lot.Margin
		openCost += lot.OpenPrice * v
		posCost += lot.PositionPrice * v
	}
	pos.FloatProfit = floatProfit
	pos.PositionProfit = positionProfit
	pos.Margin = margin
	if pos.Volume > 0 {
		pos.OpenPrice = openCost / float64(pos.Volume)
		pos.PositionPrice = posCost / float64(pos.Volume)
	} else {
		pos.OpenPrice = 0
		pos.PositionPrice = 0
	}
}

func sideSign(s model.Side) float64 {
	if s == model.SideShort {
		return -1
	}
	return 1
}

func multiplier(q *model.Quote) float64 {
	if q.Multiplier > 0 {
		return q.Multiplier
	}
	return 1
}

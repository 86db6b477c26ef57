package dispatch

import (
	"log/slog"
	"slices"
	"time"

	"github.com/rickgao/tradesim/internal/diff"
	"github.com/rickgao/tradesim/internal/ledger"
	"github.com/rickgao/tradesim/internal/matching"
	"github.com/rickgao/tradesim/internal/metrics"
	"github.com/rickgao/tradesim/internal/model"
)

// actorState is the lifecycle of a symbol actor.
type actorState int

const (
	stateUnsubscribed actorState = iota
	stateAwaitingQuote
	stateActive
)

func (s actorState) String() string {
	switch s {
	case stateAwaitingQuote:
		return "AWAITING_FIRST_QUOTE"
	case stateActive:
		return "ACTIVE"
	default:
		return "UNSUBSCRIBED"
	}
}

type msgKind int

const (
	msgSubscribe msgKind = iota
	msgQuote
	msgInsert
	msgCancel
	msgEndOfDay
)

// actorMsg is one inbox entry. at and tradingDay stamp any trade it produces.
type actorMsg struct {
	kind       msgKind
	quote      model.Quote
	order      *model.Order
	orderID    string
	at         time.Time
	tradingDay time.Time
}

// actorReply collects what handling one message produced.
type actorReply struct {
	diffs    []diff.Diff
	outcomes []string
}

func (r *actorReply) add(d ...diff.Diff) { r.diffs = append(r.diffs, d...) }

func (r *actorReply) delta(d ledger.Delta) {
	for _, p := range d.Positions {
		r.diffs = append(r.diffs, diff.Position(p))
	}
	r.diffs = append(r.diffs, diff.Account(d.Account))
}

// actor owns the orders and latest quote of one symbol. It runs on its own
// goroutine but only while the dispatcher waits for its reply.
type actor struct {
	symbol string
	ledger *ledger.Ledger
	logger *slog.Logger

	inbox chan actorMsg
	reply chan actorReply

	state  actorState
	quote  model.Quote
	orders *matching.OrderSet
	held   []*model.Order // LIMIT orders inserted before the first quote
}

func newActor(symbol string, l *ledger.Ledger, logger *slog.Logger) *actor {
	return &actor{
		symbol: symbol,
		ledger: l,
		logger: logger.With("symbol", symbol),
		inbox:  make(chan actorMsg),
		reply:  make(chan actorReply, 1),
		orders: matching.NewOrderSet(),
	}
}

// run serves the inbox until it is closed.
func (a *actor) run() {
	for msg := range a.inbox {
		a.reply <- a.handle(msg)
	}
}

func (a *actor) handle(msg actorMsg) actorReply {
	var r actorReply
	switch msg.kind {
	case msgSubscribe:
		if a.state == stateUnsubscribed {
			a.state = stateAwaitingQuote
			a.logger.Debug("actor subscribed")
		}
	case msgQuote:
		a.onQuote(msg, &r)
	case msgInsert:
		a.onInsert(msg.order, msg, &r)
	case msgCancel:
		a.onCancel(msg.orderID, &r)
	case msgEndOfDay:
		a.onEndOfDay(&r)
	}
	return r
}

func (a *actor) onQuote(msg actorMsg, r *actorReply) {
	a.quote = msg.quote
	r.add(diff.Quote(msg.quote))

	for _, o := range a.orders.Alive() {
		a.match(o, msg, r)
	}

	if a.state == stateAwaitingQuote {
		a.state = stateActive
		held := a.held
		a.held = nil
		for _, o := range held {
			a.accept(o, msg, r)
		}
	}

	if d, ok := a.ledger.MarkToMarket(&a.quote); ok {
		r.delta(d)
	}
}

func (a *actor) onInsert(o *model.Order, msg actorMsg, r *actorReply) {
	if a.state != stateActive {
		if o.PriceType == model.PriceTypeAny {
			a.reject(o, model.RejectNoOppositeQuote, r)
			return
		}
		a.held = append(a.held, o)
		a.logger.Debug("order held until first quote", "order_id", o.OrderID)
		return
	}
	a.accept(o, msg, r)
}

// accept validates o against the current quote, reserves funds or volume,
// makes it ALIVE and tries to match it at once.
func (a *actor) accept(o *model.Order, msg actorMsg, r *actorReply) {
	q := &a.quote
	if o.PriceType == model.PriceTypeLimit && q.HasLimits() &&
		(o.LimitPrice > q.UpperLimit || o.LimitPrice < q.LowerLimit) {
		a.reject(o, model.RejectPriceOutOfRange, r)
		return
	}

	price, ok := matching.ReferencePrice(o, q)
	if !ok {
		a.reject(o, model.RejectNoOppositeQuote, r)
		return
	}

	delta, err := a.ledger.Reserve(o, q, price)
	if err != nil {
		a.reject(o, err.Error(), r)
		return
	}

	o.Status = model.StatusAlive
	o.LastMsg = model.MsgAccepted
	a.orders.Add(o)
	r.add(diff.Order(*o))
	r.delta(delta)
	r.outcomes = append(r.outcomes, metrics.OutcomeAccepted)

	a.match(o, msg, r)
}

func (a *actor) match(o *model.Order, msg actorMsg, r *actorReply) {
	res := matching.TryMatch(o, &a.quote)
	switch res.Outcome {
	case matching.Filled:
		a.fill(o, res.Price, msg, r)
	case matching.Rejected:
		a.orders.Remove(o.OrderID)
		r.delta(a.ledger.Release(o))
		a.reject(o, res.Reason, r)
	}
}

func (a *actor) fill(o *model.Order, price float64, msg actorMsg, r *actorReply) {
	trade, delta := a.ledger.ApplyFill(o, price, &a.quote, msg.at, msg.tradingDay)
	a.orders.Remove(o.OrderID)
	o.VolumeLeft = 0
	o.TradePrice = price
	o.Finish(model.MsgFilled)

	r.add(diff.Order(*o), diff.Trade(trade))
	r.delta(delta)
	r.outcomes = append(r.outcomes, metrics.OutcomeFilled)

	a.logger.Debug("order filled",
		"order_id", o.OrderID,
		"price", price,
		"volume", trade.Volume,
	)
}

func (a *actor) reject(o *model.Order, reason string, r *actorReply) {
	o.Finish(reason)
	r.add(diff.Order(*o))
	r.outcomes = append(r.outcomes, metrics.OutcomeRejected)
	a.logger.Debug("order rejected", "order_id", o.OrderID, "reason", reason)
}

func (a *actor) onCancel(id string, r *actorReply) {
	if o, ok := a.orders.Remove(id); ok {
		r.delta(a.ledger.Release(o))
		o.Finish(model.MsgCancelledByUser)
		r.add(diff.Order(*o))
		r.outcomes = append(r.outcomes, metrics.OutcomeCancelled)
		return
	}

	if i := slices.IndexFunc(a.held, func(o *model.Order) bool { return o.OrderID == id }); i >= 0 {
		o := a.held[i]
		a.held = slices.Delete(a.held, i, i+1)
		o.Finish(model.MsgCancelledByUser)
		r.add(diff.Order(*o))
		r.outcomes = append(r.outcomes, metrics.OutcomeCancelled)
		return
	}

	r.add(diff.Notification(diff.LevelInfo, diff.CodeCancelNoop, id+": already finished"))
}

// onEndOfDay expires every resting and held order of the trading day.
func (a *actor) onEndOfDay(r *actorReply) {
	for _, o := range a.orders.Alive() {
		a.orders.Remove(o.OrderID)
		r.delta(a.ledger.Release(o))
		o.Finish(model.MsgCancelledEndOfDay)
		r.add(diff.Order(*o))
		r.outcomes = append(r.outcomes, metrics.OutcomeExpired)
	}
	for _, o := range a.held {
		o.Finish(model.MsgCancelledEndOfDay)
		r.add(diff.Order(*o))
		r.outcomes = append(r.outcomes, metrics.OutcomeExpired)
	}
	a.held = nil
}

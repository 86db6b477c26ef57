package matching

import "github.com/rickgao/tradesim/internal/model"

// Outcome is the result category of TryMatch.
type Outcome int

const (
	// Unresolved means the order keeps resting.
	Unresolved Outcome = iota
	// Filled means the whole remaining volume trades at Result.Price.
	Filled
	// Rejected means the order can never trade; Result.Reason says why.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Filled:
		return "filled"
	case Rejected:
		return "rejected"
	default:
		return "unresolved"
	}
}

// Result is returned by TryMatch.
type Result struct {
	Outcome Outcome
	Price   float64
	Reason  string
}

// TryMatch checks an ALIVE order against the latest quote of its symbol.
// It has no side effects.
func TryMatch(o *model.Order, q *model.Quote) Result {
	if o == nil || q == nil || !o.IsAlive() || o.VolumeLeft <= 0 {
		return Result{Outcome: Unresolved}
	}

	switch o.PriceType {
	case model.PriceTypeAny:
		return matchMarket(o, q)
	default:
		return matchLimit(o, q)
	}
}

func matchLimit(o *model.Order, q *model.Quote) Result {
	switch o.Direction {
	case model.DirectionBuy:
		if q.HasAsk() && q.AskPrice <= o.LimitPrice {
			return Result{Outcome: Filled, Price: o.LimitPrice}
		}
	case model.DirectionSell:
		if q.HasBid() && q.BidPrice >= o.LimitPrice {
			return Result{Outcome: Filled, Price: o.LimitPrice}
		}
	}
	return Result{Outcome: Unresolved}
}

func matchMarket(o *model.Order, q *model.Quote) Result {
	price, ok := OppositePrice(o.Direction, q)
	if !ok {
		return Result{Outcome: Rejected, Reason: model.RejectNoOppositeQuote}
	}
	return Result{Outcome: Filled, Price: price}
}

// OppositePrice returns the price a market order in direction d would take:
// the ask for a buy, the bid for a sell.
func OppositePrice(d model.Direction, q *model.Quote) (float64, bool) {
	if d == model.DirectionBuy {
		return q.AskPrice, q.HasAsk()
	}
	return q.BidPrice, q.HasBid()
}

// ReferencePrice is the price used to size margin before an order trades:
// the limit price for LIMIT orders, the opposite-side price for ANY orders.
func ReferencePrice(o *model.Order, q *model.Quote) (float64, bool) {
	if o.PriceType == model.PriceTypeAny {
		return OppositePrice(o.Direction, q)
	}
	return o.LimitPrice, o.LimitPrice > 0
}

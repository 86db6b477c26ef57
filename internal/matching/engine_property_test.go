package matching

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/rickgao/tradesim/internal/model"
)

func TestProperty_LimitFillPriceIsLimitPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := float64(rapid.Int64Range(1, 10000).Draw(t, "limit"))
		bid := float64(rapid.Int64Range(0, 10000).Draw(t, "bid"))
		ask := float64(rapid.Int64Range(0, 10000).Draw(t, "ask"))
		buy := rapid.Bool().Draw(t, "buy")

		d := model.DirectionSell
		if buy {
			d = model.DirectionBuy
		}
		o := limitOrder(d, limit)
		q := &model.Quote{BidPrice: bid, AskPrice: ask}

		got := TryMatch(o, q)

		var crosses bool
		if buy {
			crosses = ask > 0 && ask <= limit
		} else {
			crosses = bid > 0 && bid >= limit
		}

		if got.Outcome == Rejected {
			t.Fatalf("limit order rejected: %+v", got)
		}
		if crosses != (got.Outcome == Filled) {
			t.Fatalf("Outcome = %v with bid=%v ask=%v limit=%v buy=%v", got.Outcome, bid, ask, limit, buy)
		}
		if got.Outcome == Filled && got.Price != limit {
			t.Fatalf("fill price = %v, want limit %v", got.Price, limit)
		}
	})
}

func TestProperty_MarketOrdersNeverRest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bid := float64(rapid.Int64Range(0, 10000).Draw(t, "bid"))
		ask := float64(rapid.Int64Range(0, 10000).Draw(t, "ask"))
		buy := rapid.Bool().Draw(t, "buy")

		d := model.DirectionSell
		if buy {
			d = model.DirectionBuy
		}
		got := TryMatch(marketOrder(d), &model.Quote{BidPrice: bid, AskPrice: ask})

		if got.Outcome == Unresolved {
			t.Fatalf("market order left unresolved with bid=%v ask=%v", bid, ask)
		}
		if got.Outcome == Filled {
			want := bid
			if buy {
				want = ask
			}
			if got.Price != want {
				t.Fatalf("fill price = %v, want %v", got.Price, want)
			}
		}
	})
}

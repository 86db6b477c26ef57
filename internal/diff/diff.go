// Package diff defines the incremental update stream delivered to consumers.
//
// Each Diff replaces one entity wholesale (a quote, order, trade, position or
// the account) or appends a record (snapshot, notification, report). Replaying
// every diff of a run with State.Apply reproduces the simulator's final state.
package diff

import (
	"slices"

	"github.com/rickgao/tradesim/internal/model"
	"github.com/rickgao/tradesim/internal/stats"
)

// Kind is the entity a diff carries.
type Kind string

const (
	KindQuote    Kind = "quote"
	KindOrder    Kind = "order"
	KindTrade    Kind = "trade"
	KindPosition Kind = "position"
	KindAccount  Kind = "account"
	KindSnapshot Kind = "snapshot"
	KindNotify   Kind = "notify"
	KindReport   Kind = "report"
)

// AccountKey is the key of account diffs.
const AccountKey = "account"

// Notification levels.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
)

// Notification codes.
const (
	CodeCancelNoop     = "cancel_noop"
	CodeOrderNotFound  = "order_not_found"
	CodeDuplicateOrder = "duplicate_order"
	CodeUnknownSymbol  = "unknown_symbol"
	CodeSettlementGap  = "settlement_gap"
	CodeRunFinished    = "run_finished"
)

// Notify reports a non-fatal condition.
type Notify struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Content string `json:"content"`
}

// Diff is one entry of the stream. Exactly one payload field is set, matching Kind.
type Diff struct {
	Kind     Kind                 `json:"kind"`
	Key      string               `json:"key,omitempty"`
	Quote    *model.Quote         `json:"quote,omitempty"`
	Order    *model.Order         `json:"order,omitempty"`
	Trade    *model.Trade         `json:"trade,omitempty"`
	Position *model.Position      `json:"position,omitempty"`
	Account  *model.Account       `json:"account,omitempty"`
	Snapshot *model.DailySnapshot `json:"snapshot,omitempty"`
	Notify   *Notify              `json:"notify,omitempty"`
	Report   *stats.Report        `json:"report,omitempty"`
}

// Quote wraps a quote.
func Quote(q model.Quote) Diff {
	return Diff{Kind: KindQuote, Key: q.Symbol, Quote: &q}
}

// Order wraps an order.
func Order(o model.Order) Diff {
	return Diff{Kind: KindOrder, Key: o.OrderID, Order: &o}
}

// Trade wraps a trade.
func Trade(t model.Trade) Diff {
	return Diff{Kind: KindTrade, Key: t.TradeID, Trade: &t}
}

// Position wraps a position.
func Position(p model.Position) Diff {
	c := p.Clone()
	return Diff{Kind: KindPosition, Key: c.Key(), Position: &c}
}

// Account wraps the account.
func Account(a model.Account) Diff {
	return Diff{Kind: KindAccount, Key: AccountKey, Account: &a}
}

// Snapshot wraps a daily snapshot.
func Snapshot(s model.DailySnapshot) Diff {
	return Diff{Kind: KindSnapshot, Key: s.TradingDay.Format("2006-01-02"), Snapshot: &s}
}

// Notification builds a notify diff.
func Notification(level, code, content string) Diff {
	return Diff{Kind: KindNotify, Key: code, Notify: &Notify{Level: level, Code: code, Content: content}}
}

// Report wraps the final statistics report.
func Report(r stats.Report) Diff {
	return Diff{Kind: KindReport, Key: "report", Report: &r}
}

// State is a consumer-side reconstruction of the simulator state.
type State struct {
	Quotes        map[string]model.Quote
	Orders        map[string]model.Order
	Trades        map[string]model.Trade
	Positions     map[string]model.Position
	Account       model.Account
	Snapshots     []model.DailySnapshot
	Notifications []Notify
	Report        *stats.Report
}

// NewState creates an empty state.
func NewState() *State {
	return &State{
		Quotes:    make(map[string]model.Quote),
		Orders:    make(map[string]model.Order),
		Trades:    make(map[string]model.Trade),
		Positions: make(map[string]model.Position),
	}
}

// Apply merges diffs in order.
func (s *State) Apply(diffs ...Diff) {
	for _, d := range diffs {
		switch d.Kind {
		case KindQuote:
			if d.Quote != nil {
				s.Quotes[d.Key] = *d.Quote
			}
		case KindOrder:
			if d.Order != nil {
				s.Orders[d.Key] = *d.Order
			}
		case KindTrade:
			if d.Trade != nil {
				s.Trades[d.Key] = *d.Trade
			}
		case KindPosition:
			if d.Position != nil {
				s.Positions[d.Key] = d.Position.Clone()
			}
		case KindAccount:
			if d.Account != nil {
				s.Account = *d.Account
			}
		case KindSnapshot:
			if d.Snapshot != nil {
				s.Snapshots = append(s.Snapshots, *d.Snapshot)
			}
		case KindNotify:
			if d.Notify != nil {
				s.Notifications = append(s.Notifications, *d.Notify)
			}
		case KindReport:
			if d.Report != nil {
				r := *d.Report
				r.DailyYields = slices.Clone(r.DailyYields)
				s.Report = &r
			}
		}
	}
}

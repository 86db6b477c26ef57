package model

import "time"

// Direction is the side of an order or trade.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Offset says whether an order opens or closes a position.
type Offset string

const (
	OffsetOpen       Offset = "OPEN"
	OffsetClose      Offset = "CLOSE"
	OffsetCloseToday Offset = "CLOSETODAY"
)

// PriceType is LIMIT (rest until crossed) or ANY (market, fill now or reject).
type PriceType string

const (
	PriceTypeLimit PriceType = "LIMIT"
	PriceTypeAny   PriceType = "ANY"
)

// OrderStatus is ALIVE until the order fills, is cancelled or is rejected.
type OrderStatus string

const (
	StatusAlive    OrderStatus = "ALIVE"
	StatusFinished OrderStatus = "FINISHED"
)

// Side is the direction of a held position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Order status messages.
const (
	MsgAccepted          = "order accepted"
	MsgFilled            = "filled"
	MsgCancelledByUser   = "cancelled by user"
	MsgCancelledEndOfDay = "cancelled at end of trading day"
)

// Rejection reasons.
const (
	RejectInsufficientFunds    = "insufficient funds"
	RejectInsufficientPosition = "insufficient position"
	RejectNoOppositeQuote      = "no opposite-side quote"
	RejectPriceOutOfRange      = "limit price out of range"
	RejectInvalidVolume        = "invalid volume"
	RejectInvalidOrder         = "invalid order fields"
	RejectUnknownSymbol        = "unknown symbol"
	RejectDuplicateOrderID     = "duplicate order id"
)

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// Quote is the latest market snapshot of one instrument.
type Quote struct {
	Symbol         string    `json:"instrument_id"`
	Datetime       time.Time `json:"datetime"`
	LastPrice      float64   `json:"last_price"`
	BidPrice       float64   `json:"bid_price1"`
	BidVolume      int64     `json:"bid_volume1"`
	AskPrice       float64   `json:"ask_price1"`
	AskVolume      int64     `json:"ask_volume1"`
	UpperLimit     float64   `json:"upper_limit"`
	LowerLimit     float64   `json:"lower_limit"`
	Multiplier     float64   `json:"volume_multiple"`
	MarginRate     float64   `json:"margin_rate"`
	CommissionRate float64   `json:"commission_rate"`
}

// HasBid reports whether a bid side is quoted.
func (q Quote) HasBid() bool { return q.BidPrice > 0 }

// HasAsk reports whether an ask side is quoted.
func (q Quote) HasAsk() bool { return q.AskPrice > 0 }

// HasLast reports whether a last traded price is known.
func (q Quote) HasLast() bool { return q.LastPrice > 0 }

// HasLimits reports whether both price limits are set.
func (q Quote) HasLimits() bool { return q.UpperLimit > 0 && q.LowerLimit > 0 }

// -----------------------------------------------------------------------------
// Orders and Trades
// -----------------------------------------------------------------------------

// Order is a strategy order. Fills are all-or-nothing so VolumeLeft is
// either VolumeOrign or zero.
type Order struct {
	OrderID      string      `json:"order_id"`
	Symbol       string      `json:"instrument_id"`
	Direction    Direction   `json:"direction"`
	Offset       Offset      `json:"offset"`
	PriceType    PriceType   `json:"price_type"`
	LimitPrice   float64     `json:"limit_price"`
	VolumeOrign  int64       `json:"volume_orign"`
	VolumeLeft   int64       `json:"volume_left"`
	Status       OrderStatus `json:"status"`
	LastMsg      string      `json:"last_msg"`
	InsertTime   time.Time   `json:"insert_date_time"`
	Seqno        int64       `json:"seqno"`
	FrozenMargin float64     `json:"frozen_margin"`
	TradePrice   float64     `json:"trade_price"`
}

// IsAlive reports whether the order can still fill.
func (o *Order) IsAlive() bool { return o.Status == StatusAlive }

// Finish moves the order to FINISHED with the given message.
func (o *Order) Finish(msg string) {
	o.Status = StatusFinished
	o.LastMsg = msg
	o.FrozenMargin = 0
}

// Closes reports whether the order reduces a position.
func (o *Order) Closes() bool { return o.Offset != OffsetOpen }

// PositionSide is the side of the position this order opens or closes.
// BUY OPEN and SELL CLOSE act on LONG; SELL OPEN and BUY CLOSE act on SHORT.
func (o *Order) PositionSide() Side {
	return PositionSideOf(o.Direction, o.Offset)
}

// PositionSideOf maps a direction and offset to the affected position side.
func PositionSideOf(d Direction, off Offset) Side {
	buy := d == DirectionBuy
	if off != OffsetOpen {
		buy = !buy
	}
	if buy {
		return SideLong
	}
	return SideShort
}

// Trade is the record of one fill.
type Trade struct {
	TradeID     string    `json:"trade_id"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"instrument_id"`
	Direction   Direction `json:"direction"`
	Offset      Offset    `json:"offset"`
	Volume      int64     `json:"volume"`
	Price       float64   `json:"price"`
	Multiplier  float64   `json:"volume_multiple"`
	Commission  float64   `json:"commission"`
	CloseProfit float64   `json:"close_profit"`
	TradeTime   time.Time `json:"trade_date_time"`
	TradingDay  time.Time `json:"trading_day"`
}

// -----------------------------------------------------------------------------
// Positions and Account
// -----------------------------------------------------------------------------

// Lot is one opening fill still (partly) held, consumed FIFO on close.
type Lot struct {
	Volume        int64   `json:"volume"`
	OpenPrice     float64 `json:"open_price"`
	PositionPrice float64 `json:"position_price"` // open price today, settlement price once carried
	Margin        float64 `json:"margin"`
	Today         bool    `json:"today"`
}

// Position is the holding of one symbol on one side.
type Position struct {
	Symbol         string  `json:"instrument_id"`
	Side           Side    `json:"side"`
	Volume         int64   `json:"volume"`
	VolumeToday    int64   `json:"volume_today"`
	FrozenVolume   int64   `json:"volume_frozen"`
	FrozenToday    int64   `json:"volume_frozen_today"`
	OpenPrice      float64 `json:"open_price"`
	PositionPrice  float64 `json:"position_price"`
	LastPrice      float64 `json:"last_price"`
	Multiplier     float64 `json:"volume_multiple"`
	FloatProfit    float64 `json:"float_profit"`
	PositionProfit float64 `json:"position_profit"`
	Margin         float64 `json:"margin"`
	Lots           []Lot   `json:"lots"`
}

// Key returns the position's identity in diffs and maps.
func (p *Position) Key() string { return PositionKey(p.Symbol, p.Side) }

// Clone returns a deep copy.
func (p *Position) Clone() Position {
	c := *p
	c.Lots = append([]Lot(nil), p.Lots...)
	return c
}

// PositionKey identifies a position by symbol and side.
func PositionKey(symbol string, side Side) string {
	return symbol + ":" + string(side)
}

// Account is the single simulated trading account.
type Account struct {
	InitBalance    float64 `json:"init_balance"`
	PreBalance     float64 `json:"pre_balance"`
	Balance        float64 `json:"balance"`
	Available      float64 `json:"available"`
	Margin         float64 `json:"margin"`
	FrozenMargin   float64 `json:"frozen_margin"`
	Commission     float64 `json:"commission"`
	CloseProfit    float64 `json:"close_profit"`
	FloatProfit    float64 `json:"float_profit"`
	PositionProfit float64 `json:"position_profit"`
	MarketValue    float64 `json:"market_value"`
	RiskRatio      Ratio   `json:"risk_ratio"`
}

// DailySnapshot is the immutable end-of-day record of one trading day.
type DailySnapshot struct {
	TradingDay time.Time  `json:"trading_day"`
	Account    Account    `json:"account"`
	Positions  []Position `json:"positions"`
	Trades     []Trade    `json:"trades"`
	Gap        bool       `json:"gap"` // settled out of band, no boundary event seen
}

package dispatch

import (
	"errors"

	"github.com/rickgao/tradesim/internal/diff"
	"github.com/rickgao/tradesim/internal/model"
)

// Errors
var (
	ErrNoInstruments = errors.New("instrument universe is empty")
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrNilFeed       = errors.New("feed channel is nil")
	ErrClosed        = errors.New("dispatcher closed")
)

// Config holds configuration for the Dispatcher.
type Config struct {
	Instruments   []string // tradable universe
	Subscriptions []string // quotes routed from the start; must be in Instruments

	DiffBufferSize     int     // Default: 1024
	SnapshotBufferSize int     // Default: 64
	MaxBatch           int     // diffs per pull, 0 = everything buffered
	RiskFreeRate       float64 // daily, used by the final report
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		DiffBufferSize:     1024,
		SnapshotBufferSize: 64,
		MaxBatch:           0,
	}
}

// InsertOrderRequest is the strategy's order command. An empty OrderID gets a
// generated one.
type InsertOrderRequest struct {
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"instrument_id"`
	Direction  model.Direction `json:"direction"`
	Offset     model.Offset    `json:"offset"`
	PriceType  model.PriceType `json:"price_type"`
	LimitPrice float64         `json:"limit_price"`
	Volume     int64           `json:"volume"`
}

// Stats contains runtime statistics.
type Stats struct {
	EventsProcessed int64
	QuotesRouted    int64
	QuotesIgnored   int64
	Markers         int64
	OrdersInserted  int64
	OrdersRejected  int64
	Trades          int64
	Settlements     int64
	Gaps            int64
	Pulls           int64
	DiffsDelivered  int64
	Actors          int
	Finished        bool
	DiffBuffer      BufferStats
}

type commandKind int

const (
	cmdInsert commandKind = iota
	cmdCancel
	cmdSubscribe
)

type command struct {
	kind    commandKind
	insert  InsertOrderRequest
	orderID string
	symbols []string
}

// pullRequest is answered once with the next batch. done is the caller's
// context; an abandoned request is dropped without draining the buffer.
type pullRequest struct {
	done  <-chan struct{}
	reply chan []diff.Diff
}

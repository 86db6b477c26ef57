package transport

import (
	"errors"
	"strings"
	"time"

	"github.com/rickgao/tradesim/internal/diff"
	"github.com/rickgao/tradesim/internal/dispatch"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrStaleConn     = errors.New("connection stale (no ping)")
	ErrAlreadyClosed = errors.New("already closed")
	ErrSessionActive = errors.New("a session is already active")
)

// Packet types.
const (
	AidPeekMessage    = "peek_message"
	AidInsertOrder    = "insert_order"
	AidCancelOrder    = "cancel_order"
	AidSubscribeQuote = "subscribe_quote"
	AidRtnData        = "rtn_data"
	AidRtnError       = "rtn_error"
)

// Request is a client packet. Order fields are used by insert_order,
// OrderID alone by cancel_order, InsList by subscribe_quote.
type Request struct {
	Aid string `json:"aid"`
	dispatch.InsertOrderRequest
	InsList string `json:"ins_list,omitempty"` // comma separated symbols
}

// Symbols splits InsList, dropping blanks.
func (r Request) Symbols() []string {
	var out []string
	for _, s := range strings.Split(r.InsList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Response is a server packet.
type Response struct {
	Aid     string      `json:"aid"`
	Data    []diff.Diff `json:"data,omitempty"`
	Request string      `json:"request,omitempty"` // aid of the failed request
	Error   string      `json:"error,omitempty"`
}

// Message is a decoded server packet with its local receive time.
type Message struct {
	Response
	ReceivedAt time.Time
}

// ClientConfig configures a websocket client.
type ClientConfig struct {
	URL          string        // e.g. ws://localhost:7777/ws
	PingTimeout  time.Duration // max time without a ping before the connection is stale
	WriteTimeout time.Duration // write deadline for sends
	BufferSize   int           // message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// ServerConfig configures the websocket server.
type ServerConfig struct {
	PingInterval time.Duration // how often the server pings the client
	PongWait     time.Duration // read deadline extended by every pong
	WriteTimeout time.Duration
	ReadLimit    int64 // max client packet size in bytes
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		PingInterval: 20 * time.Second,
		PongWait:     60 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadLimit:    64 << 10,
	}
}

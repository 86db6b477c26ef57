package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tradesim/internal/diff"
	"github.com/rickgao/tradesim/internal/dispatch"
)

// Backend is the simulator as the server sees it. *dispatch.Dispatcher
// satisfies it.
type Backend interface {
	Pull(ctx context.Context) ([]diff.Diff, error)
	InsertOrder(ctx context.Context, req dispatch.InsertOrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	Subscribe(ctx context.Context, symbols ...string) error
}

// Option configures a Server.
type Option func(*Server)

// WithMirror registers fn to receive every batch delivered to the client,
// after it is pulled and before it is written.
func WithMirror(fn func([]diff.Diff)) Option {
	return func(s *Server) { s.mirror = fn }
}

// ServerStats contains runtime statistics.
type ServerStats struct {
	Sessions int64
	Rejected int64 // connections refused while a session was active
	Peeks    int64
	Commands int64
	Errors   int64 // rtn_error packets sent
}

// Server is the websocket endpoint. It serves one session at a time since
// the simulator has a single account and a single diff stream.
type Server struct {
	backend  Backend
	cfg      ServerConfig
	logger   *slog.Logger
	mirror   func([]diff.Diff)
	upgrader websocket.Upgrader

	mu     sync.Mutex
	active bool
	stats  ServerStats
}

// NewServer creates a new Server.
func NewServer(backend Backend, cfg ServerConfig, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns current statistics.
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Server) count(fn func(st *ServerStats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// ServeHTTP upgrades the request and serves the session until the client
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.active {
		s.stats.Rejected++
		s.mu.Unlock()
		s.logger.Warn("rejecting second session", "remote", r.RemoteAddr)
		http.Error(w, ErrSessionActive.Error(), http.StatusConflict)
		return
	}
	s.active = true
	s.stats.Sessions++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sess := &session{
		srv:    s,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		logger: s.logger.With("remote", r.RemoteAddr),
	}
	sess.serve()
}

// session is one connected client.
type session struct {
	srv    *Server
	conn   *websocket.Conn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex
	peeking atomic.Bool
}

func (s *session) serve() {
	cfg := s.srv.cfg
	s.logger.Info("session started")

	if cfg.ReadLimit > 0 {
		s.conn.SetReadLimit(cfg.ReadLimit)
	}
	if cfg.PongWait > 0 {
		s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		})
	}

	s.wg.Add(1)
	go s.pingLoop()

	s.readLoop()

	// Abandons a pending pull; the dispatcher drops it.
	s.cancel()
	s.wg.Wait()
	s.conn.Close()
	s.logger.Info("session ended")
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.fail("", fmt.Errorf("decode packet: %w", err))
			continue
		}
		s.handle(req)
	}
}

func (s *session) handle(req Request) {
	b := s.srv.backend

	switch req.Aid {
	case AidPeekMessage:
		if !s.peeking.CompareAndSwap(false, true) {
			s.logger.Debug("peek already pending")
			return
		}
		s.srv.count(func(st *ServerStats) { st.Peeks++ })
		s.wg.Add(1)
		go s.peek()
		return

	case AidInsertOrder:
		if _, err := b.InsertOrder(s.ctx, req.InsertOrderRequest); err != nil {
			s.fail(req.Aid, err)
		}

	case AidCancelOrder:
		if req.OrderID == "" {
			s.fail(req.Aid, errors.New("order_id is required"))
			return
		}
		if err := b.CancelOrder(s.ctx, req.OrderID); err != nil {
			s.fail(req.Aid, err)
		}

	case AidSubscribeQuote:
		symbols := req.Symbols()
		if len(symbols) == 0 {
			s.fail(req.Aid, errors.New("ins_list is empty"))
			return
		}
		if err := b.Subscribe(s.ctx, symbols...); err != nil {
			s.fail(req.Aid, err)
		}

	default:
		s.fail(req.Aid, fmt.Errorf("unknown aid %q", req.Aid))
		return
	}
	s.srv.count(func(st *ServerStats) { st.Commands++ })
}

// peek answers one peek_message with one pull.
func (s *session) peek() {
	defer s.wg.Done()

	diffs, err := s.srv.backend.Pull(s.ctx)
	if err != nil {
		s.peeking.Store(false)
		if s.ctx.Err() != nil {
			return
		}
		s.fail(AidPeekMessage, err)
		return
	}

	if s.srv.mirror != nil {
		s.srv.mirror(diffs)
	}

	// Clear the flag under the write lock so the next peek, which the client
	// only sends after reading this batch, cannot overtake it.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.peeking.Store(false)
	if err := s.writeLocked(Response{Aid: AidRtnData, Data: diffs}); err != nil {
		s.logger.Warn("write rtn_data failed", "error", err, "diffs", len(diffs))
	}
}

func (s *session) fail(aid string, err error) {
	s.srv.count(func(st *ServerStats) { st.Errors++ })
	s.logger.Debug("request failed", "aid", aid, "error", err)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if werr := s.writeLocked(Response{Aid: AidRtnError, Request: aid, Error: err.Error()}); werr != nil {
		s.logger.Warn("write rtn_error failed", "error", werr)
	}
}

func (s *session) writeLocked(resp Response) error {
	if t := s.srv.cfg.WriteTimeout; t > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(t))
	}
	return s.conn.WriteJSON(resp)
}

// pingLoop keeps the connection alive until the session ends.
func (s *session) pingLoop() {
	defer s.wg.Done()

	interval := s.srv.cfg.PingInterval
	if interval <= 0 {
		<-s.ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(max(s.srv.cfg.WriteTimeout, time.Second))
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

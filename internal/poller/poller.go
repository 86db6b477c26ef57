package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tradesim/internal/dispatch"
)

// StatsSource provides the statistics to sample. *dispatch.Dispatcher
// satisfies it.
type StatsSource interface {
	Stats() dispatch.Stats
}

// SampleHandler receives every sample.
type SampleHandler interface {
	HandleSample(s Sample) error
}

// SampleHandlerFunc is a function adapter for SampleHandler.
type SampleHandlerFunc func(Sample) error

func (f SampleHandlerFunc) HandleSample(s Sample) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Sample interval (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
	}
}

// Sample is one observation of the run.
type Sample struct {
	At           time.Time
	Elapsed      time.Duration // since Start
	Stats        dispatch.Stats
	EventsPerSec float64 // since the previous sample
}

// Poller periodically samples run statistics.
type Poller struct {
	cfg     Config
	source  StatsSource
	handler SampleHandler
	logger  *slog.Logger

	started  time.Time
	prev     Sample
	finished bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. handler may be nil.
func New(cfg Config, source StatsSource, handler SampleHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the sampling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = time.Now()
	p.prev = Sample{At: p.started}

	p.wg.Add(1)
	go p.run()

	p.logger.Info("progress poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("progress poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main sampling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case now := <-ticker.C:
			p.poll(now)
		}
	}
}

// poll takes one sample.
func (p *Poller) poll(now time.Time) Sample {
	s := Sample{
		At:      now,
		Elapsed: now.Sub(p.started),
		Stats:   p.source.Stats(),
	}
	if dt := now.Sub(p.prev.At).Seconds(); dt > 0 {
		s.EventsPerSec = float64(s.Stats.EventsProcessed-p.prev.Stats.EventsProcessed) / dt
	}
	p.prev = s

	// One line after the run finishes is enough.
	if !p.finished {
		p.logger.Info("replay progress",
			"events", s.Stats.EventsProcessed,
			"events_per_sec", s.EventsPerSec,
			"trades", s.Stats.Trades,
			"settlements", s.Stats.Settlements,
			"buffered_diffs", s.Stats.DiffBuffer.Count,
			"pulls", s.Stats.Pulls,
			"finished", s.Stats.Finished,
		)
	}
	p.finished = s.Stats.Finished

	if p.handler != nil {
		if err := p.handler.HandleSample(s); err != nil {
			p.logger.Warn("sample handler failed", "error", err)
		}
	}
	return s
}

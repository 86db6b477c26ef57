package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/tradesim/internal/dispatch"
)

// mockStatsSource returns whatever stats it currently holds.
type mockStatsSource struct {
	mu    sync.Mutex
	stats dispatch.Stats
}

func (m *mockStatsSource) Stats() dispatch.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *mockStatsSource) set(s dispatch.Stats) {
	m.mu.Lock()
	m.stats = s
	m.mu.Unlock()
}

func TestPoller_Poll(t *testing.T) {
	source := &mockStatsSource{}
	var samples []Sample
	handler := SampleHandlerFunc(func(s Sample) error {
		samples = append(samples, s)
		return nil
	})

	p := New(Config{Interval: time.Hour}, source, handler, nil)
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	p.started = start
	p.prev = Sample{At: start}

	source.set(dispatch.Stats{EventsProcessed: 500, Trades: 3})
	first := p.poll(start.Add(10 * time.Second))

	if first.EventsPerSec != 50 {
		t.Errorf("EventsPerSec = %v, want 50", first.EventsPerSec)
	}
	if first.Elapsed != 10*time.Second {
		t.Errorf("Elapsed = %v, want 10s", first.Elapsed)
	}

	source.set(dispatch.Stats{EventsProcessed: 800, Trades: 4, Finished: true})
	second := p.poll(start.Add(15 * time.Second))

	if second.EventsPerSec != 60 {
		t.Errorf("EventsPerSec = %v, want 60", second.EventsPerSec)
	}
	if !second.Stats.Finished || second.Stats.Trades != 4 {
		t.Errorf("Stats = %+v, want finished with 4 trades", second.Stats)
	}
	if len(samples) != 2 {
		t.Errorf("handler saw %d samples, want 2", len(samples))
	}
}

func TestPoller_HandlerErrorDoesNotStop(t *testing.T) {
	var calls atomic.Int32
	handler := SampleHandlerFunc(func(s Sample) error {
		calls.Add(1)
		return errors.New("sink unavailable")
	})

	p := New(Config{Interval: time.Hour}, &mockStatsSource{}, handler, nil)
	now := time.Now()
	p.started, p.prev = now, Sample{At: now}

	p.poll(now.Add(time.Second))
	p.poll(now.Add(2 * time.Second))

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	var called atomic.Bool
	handler := SampleHandlerFunc(func(s Sample) error {
		called.Store(true)
		return nil
	})

	p := New(Config{Interval: 20 * time.Millisecond}, &mockStatsSource{}, handler, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least one sample.
	time.Sleep(100 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !called.Load() {
		t.Error("handler was never called")
	}
}

func TestDefaultConfig(t *testing.T) {
	if got := DefaultConfig().Interval; got != 10*time.Second {
		t.Errorf("Interval = %v, want 10s", got)
	}
	if p := New(Config{}, &mockStatsSource{}, nil, nil); p.cfg.Interval != 10*time.Second {
		t.Errorf("zero Interval = %v, want default 10s", p.cfg.Interval)
	}
}

package writer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/tradesim/internal/diff"
	"github.com/rickgao/tradesim/internal/model"
)

type fakeMessageWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	calls  int
	err    error
	closed bool
}

func (f *fakeMessageWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeMessageWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMessageWriter) snapshot() ([]kafka.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.msgs...), f.closed
}

func TestToMessage(t *testing.T) {
	d := diff.Order(model.Order{OrderID: "o1", Symbol: "SHFE.cu2401", Status: model.StatusAlive})

	msg, err := toMessage(d)
	if err != nil {
		t.Fatalf("toMessage failed: %v", err)
	}
	if string(msg.Key) != "order/o1" {
		t.Errorf("Key = %s, want order/o1", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "order" {
		t.Errorf("Headers = %v, want kind=order", msg.Headers)
	}

	var got diff.Diff
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if got.Kind != diff.KindOrder || got.Order == nil || got.Order.OrderID != "o1" {
		t.Errorf("decoded = %+v, want the order diff", got)
	}
}

func TestKafkaPublisher_MirrorAndStop(t *testing.T) {
	w := &fakeMessageWriter{}
	p := NewKafkaPublisher(w, 2, nil, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	p.Mirror([]diff.Diff{
		diff.Quote(model.Quote{Symbol: "SHFE.cu2401", LastPrice: 4000}),
		diff.Account(model.Account{Balance: 1_000_000}),
		diff.Notification(diff.LevelInfo, diff.CodeRunFinished, "done"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	msgs, closed := w.snapshot()
	if !closed {
		t.Error("writer not closed after Stop")
	}
	if len(msgs) != 3 {
		t.Fatalf("published = %d, want 3", len(msgs))
	}
	wantKeys := []string{"quote/SHFE.cu2401", "account/account", "notify/run_finished"}
	for i, want := range wantKeys {
		if string(msgs[i].Key) != want {
			t.Errorf("msgs[%d].Key = %s, want %s", i, msgs[i].Key, want)
		}
	}

	stats := p.Stats()
	if stats.Queued != 3 || stats.Published != 3 {
		t.Errorf("Stats = %+v, want 3 queued and published", stats)
	}
	if stats.Batches < 2 {
		t.Errorf("Batches = %d, want at least 2 with batch size 2", stats.Batches)
	}

	p.Mirror([]diff.Diff{diff.Quote(model.Quote{Symbol: "late"})})
	if got := p.Stats().Queued; got != 3 {
		t.Errorf("Queued after Stop = %d, want 3", got)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeMessageWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w, 10, nil, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	p.Mirror([]diff.Diff{diff.Account(model.Account{})})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := p.Stats()
	if stats.Errors != 1 || stats.Published != 0 {
		t.Errorf("Stats = %+v, want 1 error and nothing published", stats)
	}
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "tradesim.diffs", 50*time.Millisecond)
	defer w.Close()

	if w.Topic != "tradesim.diffs" {
		t.Errorf("Topic = %s, want tradesim.diffs", w.Topic)
	}
	if w.RequiredAcks != kafka.RequireAll {
		t.Errorf("RequiredAcks = %v, want RequireAll", w.RequiredAcks)
	}
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Errorf("Balancer = %T, want *kafka.Hash", w.Balancer)
	}
}

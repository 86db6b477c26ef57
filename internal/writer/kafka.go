package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/tradesim/internal/diff"
	"github.com/rickgao/tradesim/internal/dispatch"
	"github.com/rickgao/tradesim/internal/metrics"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a synchronous, hash-balanced writer for topic.
func NewKafkaWriter(brokers []string, topic string, batchTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: batchTimeout,
	}
}

// KafkaPublisherStats holds metrics for the publisher.
type KafkaPublisherStats struct {
	Queued    int64
	Published int64
	Errors    int64
	Batches   int64
}

// KafkaPublisher mirrors delivered diffs to Kafka. Mirror never blocks the
// caller; diffs queue in an unbounded buffer and go out in batches.
type KafkaPublisher struct {
	writer    MessageWriter
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics

	input *dispatch.Buffer[diff.Diff]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	stats KafkaPublisherStats
}

// NewKafkaPublisher creates a publisher writing through w.
func NewKafkaPublisher(w MessageWriter, batchSize int, m *metrics.Metrics, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &KafkaPublisher{
		writer:    w,
		batchSize: batchSize,
		logger:    logger.With("writer", "kafka"),
		metrics:   m,
		input:     dispatch.NewBuffer[diff.Diff](batchSize),
		done:      make(chan struct{}),
	}
}

// Mirror queues diffs for publishing. Calls after Stop are dropped.
func (p *KafkaPublisher) Mirror(diffs []diff.Diff) {
	n := 0
	for _, d := range diffs {
		if p.input.Send(d) {
			n++
		}
	}
	p.mu.Lock()
	p.stats.Queued += int64(n)
	p.mu.Unlock()
}

// Start begins publishing. The publish loop outlives ctx until Stop so that
// queued diffs still go out during shutdown.
func (p *KafkaPublisher) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go p.run()
	p.logger.Info("kafka publisher started", "batch_size", p.batchSize)
	return nil
}

// Stop publishes what is queued, waiting at most until ctx is done, then
// closes the underlying writer.
func (p *KafkaPublisher) Stop(ctx context.Context) error {
	p.logger.Info("stopping kafka publisher", "pending", p.input.Len())
	p.input.Close()

	select {
	case <-p.done:
	case <-ctx.Done():
		p.logger.Warn("kafka publisher stop timed out", "pending", p.input.Len())
		p.cancel()
		<-p.done
	}
	p.cancel()

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// Stats returns current metrics.
func (p *KafkaPublisher) Stats() KafkaPublisherStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *KafkaPublisher) run() {
	defer close(p.done)

	for {
		first, err := p.input.ReceiveContext(p.ctx)
		if err != nil {
			return
		}
		batch := append([]diff.Diff{first}, p.input.DrainTo(p.batchSize-1)...)
		p.publish(batch)
	}
}

func (p *KafkaPublisher) publish(batch []diff.Diff) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, d := range batch {
		msg, err := toMessage(d)
		if err != nil {
			p.logger.Error("encode diff failed", "error", err, "kind", d.Kind, "key", d.Key)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	if err := p.writer.WriteMessages(p.ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "error", err, "count", len(msgs))
		p.mu.Lock()
		p.stats.Errors++
		p.mu.Unlock()
		p.metrics.WriteError("kafka")
		return
	}

	p.mu.Lock()
	p.stats.Published += int64(len(msgs))
	p.stats.Batches++
	p.mu.Unlock()
	p.metrics.Published(len(msgs))
}

// toMessage encodes one diff. The key is kind and entity key, so every
// update of one entity lands on the same partition in order.
func toMessage(d diff.Diff) (kafka.Message, error) {
	value, err := json.Marshal(d)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal diff: %w", err)
	}
	return kafka.Message{
		Key:   []byte(string(d.Kind) + "/" + d.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(d.Kind)},
		},
	}, nil
}

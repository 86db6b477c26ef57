package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradesim"

// Order outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeFilled    = "filled"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
	OutcomeExpired   = "expired"
)

// Metrics holds the simulator's collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	feedEvents     *prometheus.CounterVec
	orders         *prometheus.CounterVec
	trades         prometheus.Counter
	settlements    *prometheus.CounterVec
	bufferedDiffs  prometheus.Gauge
	deliveredDiffs prometheus.Counter
	balance        prometheus.Gauge
	riskRatio      prometheus.Gauge
	rowsWritten    *prometheus.CounterVec
	writeErrors    *prometheus.CounterVec
	published      prometheus.Counter
}

// New creates the collectors on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.feedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_events_total",
		Help:      "Feed events consumed by the dispatcher",
	}, []string{"kind"})
	m.orders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Order lifecycle outcomes",
	}, []string{"outcome"})
	m.trades = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_total",
		Help:      "Simulated fills",
	})
	m.settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Settled trading days",
	}, []string{"kind"})
	m.bufferedDiffs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buffered_diffs",
		Help:      "Diffs waiting for the next pull",
	})
	m.deliveredDiffs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivered_diffs_total",
		Help:      "Diffs handed to the consumer",
	})
	m.balance = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "account_balance",
		Help:      "Account balance after the last settlement",
	})
	m.riskRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "account_risk_ratio",
		Help:      "Margin over balance after the last settlement",
	})
	m.rowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writer_rows_total",
		Help:      "Rows persisted by writers",
	}, []string{"table"})
	m.writeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writer_errors_total",
		Help:      "Failed writer flushes",
	}, []string{"writer"})
	m.published = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "kafka_published_total",
		Help:      "Diffs mirrored to Kafka",
	})

	reg.MustRegister(
		m.feedEvents, m.orders, m.trades, m.settlements,
		m.bufferedDiffs, m.deliveredDiffs, m.balance, m.riskRatio,
		m.rowsWritten, m.writeErrors, m.published,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FeedEvent counts one consumed feed event.
func (m *Metrics) FeedEvent(kind string) {
	if m == nil {
		return
	}
	m.feedEvents.WithLabelValues(kind).Inc()
}

// OrderOutcome counts one order lifecycle outcome.
func (m *Metrics) OrderOutcome(outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
}

// Trade counts one fill.
func (m *Metrics) Trade() {
	if m == nil {
		return
	}
	m.trades.Inc()
}

// Settlement counts one settled day and records the closing account figures.
func (m *Metrics) Settlement(gap bool, balance, riskRatio float64) {
	if m == nil {
		return
	}
	kind := "regular"
	if gap {
		kind = "gap"
	}
	m.settlements.WithLabelValues(kind).Inc()
	m.balance.Set(balance)
	m.riskRatio.Set(riskRatio)
}

// Buffered sets the number of diffs waiting for a pull.
func (m *Metrics) Buffered(n int) {
	if m == nil {
		return
	}
	m.bufferedDiffs.Set(float64(n))
}

// Delivered counts diffs handed to the consumer.
func (m *Metrics) Delivered(n int) {
	if m == nil {
		return
	}
	m.deliveredDiffs.Add(float64(n))
}

// RowsWritten counts persisted rows of a table.
func (m *Metrics) RowsWritten(table string, n int) {
	if m == nil {
		return
	}
	m.rowsWritten.WithLabelValues(table).Add(float64(n))
}

// WriteError counts a failed flush of a writer.
func (m *Metrics) WriteError(writer string) {
	if m == nil {
		return
	}
	m.writeErrors.WithLabelValues(writer).Inc()
}

// Published counts diffs mirrored to Kafka.
func (m *Metrics) Published(n int) {
	if m == nil {
		return
	}
	m.published.Add(float64(n))
}

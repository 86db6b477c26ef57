package config

import (
	"slices"
	"time"

	"github.com/rickgao/tradesim/internal/calendar"
)

// Default values for optional configuration fields.
const (
	DefaultInitBalance        = 10_000_000.0
	DefaultTimezone           = "UTC"
	DefaultCutoffHour         = calendar.DefaultCutoffHour
	DefaultDiffBufferSize     = 1024
	DefaultSnapshotBufferSize = 64
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultQuoteTable         = "quotes"
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultListenAddr         = ":7777"
	DefaultKafkaTopic         = "tradesim.diffs"
	DefaultKafkaBatchTimeout  = 50 * time.Millisecond
	DefaultProgressInterval   = 10 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultLogOutput          = "stdout"
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *SimulatorConfig) applyDefaults() {
	// Account defaults
	if c.Account.InitBalance == 0 {
		c.Account.InitBalance = DefaultInitBalance
	}

	// Quotes of every instrument are routed unless narrowed down
	if len(c.Subscriptions) == 0 {
		c.Subscriptions = slices.Clone(c.Instruments)
	}

	// Calendar defaults
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = DefaultTimezone
	}
	if c.Calendar.CutoffHour == 0 {
		c.Calendar.CutoffHour = DefaultCutoffHour
	}

	// Dispatcher defaults
	if c.Dispatcher.DiffBufferSize == 0 {
		c.Dispatcher.DiffBufferSize = DefaultDiffBufferSize
	}
	if c.Dispatcher.SnapshotBufferSize == 0 {
		c.Dispatcher.SnapshotBufferSize = DefaultSnapshotBufferSize
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Feed defaults
	if c.Feed.Table == "" {
		c.Feed.Table = DefaultQuoteTable
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}

	// Server defaults
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}

	// Kafka defaults
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = DefaultKafkaTopic
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}

	// Progress defaults
	if c.Progress.Interval == 0 {
		c.Progress.Interval = DefaultProgressInterval
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = DefaultLogOutput
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

package config

import (
	"fmt"
	"time"

	"github.com/rickgao/tradesim/internal/calendar"
	"github.com/rickgao/tradesim/internal/dispatch"
	"github.com/rickgao/tradesim/internal/logging"
)

// SimulatorConfig is the root configuration for a simulator instance.
type SimulatorConfig struct {
	Instance      InstanceConfig   `yaml:"instance"`
	Account       AccountConfig    `yaml:"account"`
	Instruments   []string         `yaml:"instruments"`
	Subscriptions []string         `yaml:"subscriptions"`
	Calendar      CalendarConfig   `yaml:"calendar"`
	Dispatcher    DispatcherConfig `yaml:"dispatcher"`
	Database      DatabaseConfig   `yaml:"database"`
	Feed          FeedConfig       `yaml:"feed"`
	Writers       WritersConfig    `yaml:"writers"`
	Server        ServerConfig     `yaml:"server"`
	Kafka         KafkaConfig      `yaml:"kafka"`
	Progress      ProgressConfig   `yaml:"progress"`
	Logging       logging.Config   `yaml:"logging"`
	Metrics       MetricsConfig    `yaml:"metrics"`
}

// InstanceConfig identifies this simulator run.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// AccountConfig holds the simulated account settings.
type AccountConfig struct {
	InitBalance  float64 `yaml:"init_balance"`
	RiskFreeRate float64 `yaml:"risk_free_rate"` // per trading day
}

// CalendarConfig holds trading calendar settings.
type CalendarConfig struct {
	Timezone   string   `yaml:"timezone"`
	CutoffHour int      `yaml:"cutoff_hour"`
	Holidays   []string `yaml:"holidays"` // YYYY-MM-DD
}

// DispatcherConfig holds event loop buffer settings.
type DispatcherConfig struct {
	DiffBufferSize     int `yaml:"diff_buffer_size"`
	SnapshotBufferSize int `yaml:"snapshot_buffer_size"`
	MaxBatch           int `yaml:"max_batch"`
}

// DatabaseConfig holds the Postgres connection that stores quotes and snapshots.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// FeedConfig selects the quotes to replay.
type FeedConfig struct {
	Table string    `yaml:"table"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ServerConfig holds the websocket endpoint settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// KafkaConfig holds the optional diff mirror settings.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// ProgressConfig holds the progress poller settings.
type ProgressConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// CalendarSettings resolves the time zone and holidays into a calendar config.
func (c *SimulatorConfig) CalendarSettings() (calendar.Config, error) {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return calendar.Config{}, fmt.Errorf("load timezone %q: %w", c.Calendar.Timezone, err)
	}
	holidays, err := calendar.ParseHolidays(c.Calendar.Holidays, loc)
	if err != nil {
		return calendar.Config{}, err
	}
	return calendar.Config{
		Location:   loc,
		CutoffHour: c.Calendar.CutoffHour,
		Holidays:   holidays,
	}, nil
}

// DispatchSettings builds the dispatcher config.
func (c *SimulatorConfig) DispatchSettings() dispatch.Config {
	return dispatch.Config{
		Instruments:        c.Instruments,
		Subscriptions:      c.Subscriptions,
		DiffBufferSize:     c.Dispatcher.DiffBufferSize,
		SnapshotBufferSize: c.Dispatcher.SnapshotBufferSize,
		MaxBatch:           c.Dispatcher.MaxBatch,
		RiskFreeRate:       c.Account.RiskFreeRate,
	}
}

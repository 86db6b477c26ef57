package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks that all required fields are set and values are valid.
func (c *SimulatorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if !(c.Account.InitBalance > 0) {
		return fmt.Errorf("account.init_balance must be > 0, got %v", c.Account.InitBalance)
	}

	if len(c.Instruments) == 0 {
		return errors.New("instruments must not be empty")
	}
	for _, s := range c.Subscriptions {
		if !slices.Contains(c.Instruments, s) {
			return fmt.Errorf("subscriptions: %q is not in instruments", s)
		}
	}

	if c.Calendar.CutoffHour < 1 || c.Calendar.CutoffHour > 24 {
		return fmt.Errorf("calendar.cutoff_hour must be between 1 and 24, got %d", c.Calendar.CutoffHour)
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if !c.Feed.Start.IsZero() && !c.Feed.End.IsZero() && !c.Feed.End.After(c.Feed.Start) {
		return errors.New("feed.end must be after feed.start")
	}

	if c.Dispatcher.MaxBatch < 0 {
		return errors.New("dispatcher.max_batch must be >= 0")
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

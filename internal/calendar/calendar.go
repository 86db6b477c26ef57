// Package calendar maps wall-clock instants to trading days.
//
// A trading day D ends at its cutoff instant: D's date at the cutoff hour in the
// calendar's time zone. Events at or after a cutoff belong to the next trading day,
// so with the default 18:00 cutoff a Friday night session belongs to Monday.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Default values.
const (
	DefaultCutoffHour = 18
	maxSearchDays     = 366
	dateLayout        = "2006-01-02"
)

// Errors
var (
	ErrInvalidCutoff  = errors.New("cutoff hour must be between 1 and 24")
	ErrNoTradingDay   = errors.New("no trading day within a year")
	ErrInvalidHoliday = errors.New("invalid holiday date")
)

// Day is one trading day.
type Day struct {
	Date   time.Time // midnight of the trading date in the calendar's zone
	Cutoff time.Time // exclusive end of the day
}

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool { return d.Date.IsZero() }

// String formats the trading date.
func (d Day) String() string { return d.Date.Format(dateLayout) }

// Calendar resolves trading days.
type Calendar interface {
	// TradingDay returns the trading day an instant belongs to.
	TradingDay(t time.Time) (Day, error)

	// Next returns the trading day after d.
	Next(d Day) (Day, error)
}

// Config configures a Weekday calendar.
type Config struct {
	Location   *time.Location
	CutoffHour int
	Holidays   []time.Time
}

// DefaultConfig returns a UTC calendar with an 18:00 cutoff and no holidays.
func DefaultConfig() Config {
	return Config{
		Location:   time.UTC,
		CutoffHour: DefaultCutoffHour,
	}
}

// Weekday is a calendar that trades Monday to Friday except configured holidays.
type Weekday struct {
	loc        *time.Location
	cutoffHour int
	holidays   map[string]struct{}
}

// NewWeekday creates a Weekday calendar.
func NewWeekday(cfg Config) (*Weekday, error) {
	if cfg.CutoffHour < 1 || cfg.CutoffHour > 24 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCutoff, cfg.CutoffHour)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	holidays := make(map[string]struct{}, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		holidays[h.Format(dateLayout)] = struct{}{}
	}

	return &Weekday{
		loc:        loc,
		cutoffHour: cfg.CutoffHour,
		holidays:   holidays,
	}, nil
}

// ParseHolidays parses YYYY-MM-DD dates in loc.
func ParseHolidays(dates []string, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]time.Time, 0, len(dates))
	for _, s := range dates {
		d, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidHoliday, s, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// IsTradingDate reports whether the date is a weekday and not a holiday.
func (w *Weekday) IsTradingDate(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := w.holidays[date.Format(dateLayout)]
	return !holiday
}

// TradingDay implements Calendar.
func (w *Weekday) TradingDay(t time.Time) (Day, error) {
	lt := t.In(w.loc)
	date := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, w.loc)
	if !lt.Before(w.cutoff(date)) {
		date = date.AddDate(0, 0, 1)
	}
	return w.firstFrom(date)
}

// Next implements Calendar.
func (w *Weekday) Next(d Day) (Day, error) {
	return w.firstFrom(d.Date.In(w.loc).AddDate(0, 0, 1))
}

func (w *Weekday) firstFrom(date time.Time) (Day, error) {
	for i := 0; i < maxSearchDays; i++ {
		if w.IsTradingDate(date) {
			return Day{Date: date, Cutoff: w.cutoff(date)}, nil
		}
		date = date.AddDate(0, 0, 1)
	}
	return Day{}, fmt.Errorf("%w after %s", ErrNoTradingDay, date.Format(dateLayout))
}

func (w *Weekday) cutoff(date time.Time) time.Time {
	return date.Add(time.Duration(w.cutoffHour) * time.Hour)
}

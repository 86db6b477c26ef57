package calendar

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeekday_TradingDay(t *testing.T) {
	holidays := []time.Time{date(2024, 1, 1)}
	cal, err := NewWeekday(Config{Location: time.UTC, CutoffHour: 18, Holidays: holidays})
	if err != nil {
		t.Fatalf("NewWeekday failed: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"tuesday morning", time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), date(2024, 1, 2)},
		{"tuesday just before cutoff", time.Date(2024, 1, 2, 17, 59, 59, 0, time.UTC), date(2024, 1, 2)},
		{"tuesday at cutoff", time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC), date(2024, 1, 3)},
		{"friday night session", time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC), date(2024, 1, 8)},
		{"saturday", time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC), date(2024, 1, 8)},
		{"holiday", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), date(2024, 1, 2)},
		{"night before holiday", time.Date(2023, 12, 29, 21, 0, 0, 0, time.UTC), date(2024, 1, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.TradingDay(tt.at)
			if err != nil {
				t.Fatalf("TradingDay failed: %v", err)
			}
			if !got.Date.Equal(tt.want) {
				t.Errorf("TradingDay(%v) = %s, want %s", tt.at, got, tt.want.Format("2006-01-02"))
			}
			wantCutoff := tt.want.Add(18 * time.Hour)
			if !got.Cutoff.Equal(wantCutoff) {
				t.Errorf("Cutoff = %v, want %v", got.Cutoff, wantCutoff)
			}
		})
	}
}

func TestWeekday_Next(t *testing.T) {
	cal, err := NewWeekday(DefaultConfig())
	if err != nil {
		t.Fatalf("NewWeekday failed: %v", err)
	}

	fri, err := cal.TradingDay(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("TradingDay failed: %v", err)
	}
	next, err := cal.Next(fri)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !next.Date.Equal(date(2024, 1, 8)) {
		t.Errorf("Next(friday) = %s, want 2024-01-08", next)
	}
}

func TestWeekday_TimeZone(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	cal, err := NewWeekday(Config{Location: loc, CutoffHour: 18})
	if err != nil {
		t.Fatalf("NewWeekday failed: %v", err)
	}

	// 11:00 UTC is 19:00 in CST, past the cutoff.
	got, err := cal.TradingDay(time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("TradingDay failed: %v", err)
	}
	if got.String() != "2024-01-03" {
		t.Errorf("TradingDay = %s, want 2024-01-03", got)
	}
}

func TestNewWeekday_InvalidCutoff(t *testing.T) {
	for _, hour := range []int{0, 25, -3} {
		if _, err := NewWeekday(Config{CutoffHour: hour}); !errors.Is(err, ErrInvalidCutoff) {
			t.Errorf("NewWeekday(cutoff=%d) error = %v, want ErrInvalidCutoff", hour, err)
		}
	}
}

func TestParseHolidays(t *testing.T) {
	got, err := ParseHolidays([]string{"2024-02-10", "2024-02-12"}, time.UTC)
	if err != nil {
		t.Fatalf("ParseHolidays failed: %v", err)
	}
	if len(got) != 2 || !got[1].Equal(date(2024, 2, 12)) {
		t.Errorf("ParseHolidays = %v", got)
	}

	if _, err := ParseHolidays([]string{"10/02/2024"}, time.UTC); !errors.Is(err, ErrInvalidHoliday) {
		t.Errorf("ParseHolidays error = %v, want ErrInvalidHoliday", err)
	}
}

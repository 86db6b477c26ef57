package settlement

import (
	"errors"
	"testing"
	"time"

	"github.com/rickgao/tradesim/internal/calendar"
	"github.com/rickgao/tradesim/internal/ledger"
)

func at(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	l, err := ledger.New(1_000_000)
	if err != nil {
		t.Fatalf("ledger.New failed: %v", err)
	}
	cal, err := calendar.NewWeekday(calendar.DefaultConfig())
	if err != nil {
		t.Fatalf("NewWeekday failed: %v", err)
	}
	return NewProcessor(l, cal, nil)
}

func TestProcessor_OpensFirstDay(t *testing.T) {
	p := newProcessor(t)

	out, err := p.Advance(at(2, 10), nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("settlements = %d, want 0", len(out))
	}
	if p.Day().String() != "2024-01-02" {
		t.Errorf("Day() = %s, want 2024-01-02", p.Day())
	}
	if p.State() != StateAccumulating {
		t.Errorf("State() = %v, want ACCUMULATING", p.State())
	}
}

func TestProcessor_SettlesOnceAtCutoff(t *testing.T) {
	p := newProcessor(t)
	if _, err := p.Advance(at(2, 10), nil); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	p.Touch()

	var settledDays []string
	before := func(day calendar.Day) {
		if p.State() != StateSettling {
			t.Errorf("State() during settlement = %v, want SETTLING", p.State())
		}
		settledDays = append(settledDays, day.String())
	}

	out, err := p.Advance(at(2, 18), before)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("settlements = %d, want 1", len(out))
	}
	if out[0].Snapshot.Gap {
		t.Error("expected a regular settlement, got a gap")
	}
	if len(settledDays) != 1 || settledDays[0] != "2024-01-02" {
		t.Errorf("before-settle days = %v, want [2024-01-02]", settledDays)
	}

	// Same boundary again settles nothing.
	out, err = p.Advance(at(2, 18), before)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("second Advance settlements = %d, want 0", len(out))
	}
	if len(p.Snapshots()) != 1 {
		t.Errorf("Snapshots() = %d, want 1", len(p.Snapshots()))
	}
	if p.Day().String() != "2024-01-03" {
		t.Errorf("Day() = %s, want 2024-01-03", p.Day())
	}
}

func TestProcessor_GapSettlement(t *testing.T) {
	p := newProcessor(t)
	if _, err := p.Advance(at(2, 10), nil); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	p.Touch()

	out, err := p.Advance(at(5, 10), nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	wantDays := []string{"2024-01-02", "2024-01-03", "2024-01-04"}
	wantGap := []bool{false, true, true}
	if len(out) != len(wantDays) {
		t.Fatalf("settlements = %d, want %d", len(out), len(wantDays))
	}
	for i, s := range out {
		if got := s.Snapshot.TradingDay.Format("2006-01-02"); got != wantDays[i] {
			t.Errorf("settlement %d day = %s, want %s", i, got, wantDays[i])
		}
		if s.Snapshot.Gap != wantGap[i] {
			t.Errorf("settlement %d gap = %v, want %v", i, s.Snapshot.Gap, wantGap[i])
		}
	}
	if p.Gaps() != 2 {
		t.Errorf("Gaps() = %d, want 2", p.Gaps())
	}
}

func TestProcessor_SettleIsIdempotent(t *testing.T) {
	p := newProcessor(t)

	if _, ok, err := p.Settle(nil); ok || err != nil {
		t.Fatalf("Settle before any event = %v, %v, want false, nil", ok, err)
	}

	if _, err := p.Advance(at(2, 10), nil); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	p.Touch()

	s, ok, err := p.Settle(nil)
	if err != nil || !ok {
		t.Fatalf("Settle = %v, %v, want true, nil", ok, err)
	}
	if s.Snapshot.TradingDay.Format("2006-01-02") != "2024-01-02" {
		t.Errorf("TradingDay = %v, want 2024-01-02", s.Snapshot.TradingDay)
	}
	if s.Delta.Account.PreBalance != s.Snapshot.Account.Balance {
		t.Errorf("PreBalance = %v, want %v", s.Delta.Account.PreBalance, s.Snapshot.Account.Balance)
	}

	if _, ok, err := p.Settle(nil); ok || err != nil {
		t.Errorf("second Settle = %v, %v, want false, nil", ok, err)
	}
	if len(p.Snapshots()) != 1 {
		t.Errorf("Snapshots() = %d, want 1", len(p.Snapshots()))
	}
}

type brokenCalendar struct {
	calendar.Calendar
}

var errCalendar = errors.New("calendar unavailable")

func (brokenCalendar) Next(calendar.Day) (calendar.Day, error) {
	return calendar.Day{}, errCalendar
}

func TestProcessor_CalendarError(t *testing.T) {
	l, err := ledger.New(1_000_000)
	if err != nil {
		t.Fatalf("ledger.New failed: %v", err)
	}
	weekday, err := calendar.NewWeekday(calendar.DefaultConfig())
	if err != nil {
		t.Fatalf("NewWeekday failed: %v", err)
	}
	p := NewProcessor(l, brokenCalendar{Calendar: weekday}, nil)

	if _, err := p.Advance(at(2, 10), nil); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	p.Touch()

	if _, err := p.Advance(at(3, 10), nil); !errors.Is(err, errCalendar) {
		t.Errorf("Advance error = %v, want calendar error", err)
	}
}

package stats

import (
	"math"
	"testing"
	"time"

	"github.com/rickgao/tradesim/internal/model"
)

var (
	d1 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
)

func snap(day time.Time, pre, bal float64, trades ...model.Trade) model.DailySnapshot {
	return model.DailySnapshot{
		TradingDay: day,
		Account:    model.Account{PreBalance: pre, Balance: bal},
		Trades:     trades,
	}
}

func trade(day time.Time, d model.Direction, off model.Offset, vol int64, price float64) model.Trade {
	return model.Trade{
		Symbol:     "SHFE.cu2401",
		Direction:  d,
		Offset:     off,
		Volume:     vol,
		Price:      price,
		Multiplier: 10,
		TradingDay: day,
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCompute_Empty(t *testing.T) {
	r := Compute(nil, 1_000_000, 0)

	if r.FinalBalance != 1_000_000 || r.TradingDays != 0 {
		t.Errorf("report = %+v, want final 1000000 over 0 days", r)
	}
	if r.SharpeRatio != 0 || r.AnnualYield != 0 || r.MaxDrawdown != 0 || r.WinRate != 0 {
		t.Errorf("expected zero statistics, got %+v", r)
	}
}

func TestCompute_Drawdown(t *testing.T) {
	snaps := []model.DailySnapshot{
		snap(d1, 100, 110),
		snap(d2, 110, 99),
		snap(d2.AddDate(0, 0, 1), 99, 120),
	}
	r := Compute(snaps, 100, 0)

	if !near(r.MaxDrawdown, 0.1) {
		t.Errorf("MaxDrawdown = %v, want 0.1", r.MaxDrawdown)
	}
	want := []float64{0.1, -0.1, 120.0/99 - 1}
	for i, y := range r.DailyYields {
		if !near(y, want[i]) {
			t.Errorf("DailyYields[%d] = %v, want %v", i, y, want[i])
		}
	}
	if !near(r.TotalReturn, 0.2) {
		t.Errorf("TotalReturn = %v, want 0.2", r.TotalReturn)
	}
	if r.FinalBalance != 120 {
		t.Errorf("FinalBalance = %v, want 120", r.FinalBalance)
	}
}

func TestSharpe(t *testing.T) {
	tests := []struct {
		name   string
		yields []float64
		rf     float64
		want   float64
	}{
		{"no days", nil, 0, 0},
		{"single day", []float64{0.01}, 0, math.Inf(1)},
		{"flat yields", []float64{0.01, 0.01, 0.01}, 0, math.Inf(1)},
		{"two days", []float64{0.02, 0}, 0, math.Sqrt(252)},
		{"with risk free", []float64{0.02, 0}, 0.005, math.Sqrt(252) / 2},
		{"tiny spread", []float64{1e-4, 1e-4 + 1e-7, 1e-4 - 1e-7, 1e-4}, 0, math.Sqrt(252) * 1e-4 / math.Sqrt(5e-15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sharpe(tt.yields, tt.rf)
			if math.IsInf(tt.want, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("sharpe = %v, want +Inf", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-6*math.Max(1, math.Abs(tt.want)) {
				t.Errorf("sharpe = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnnualYield(t *testing.T) {
	if got := annualYield(100, 110, 252); !near(got, 0.1) {
		t.Errorf("annualYield over a year = %v, want 0.1", got)
	}
	if got := annualYield(100, 100, 10); got != 0 {
		t.Errorf("annualYield flat = %v, want 0", got)
	}
	if got := annualYield(100, -5, 10); got != -1 {
		t.Errorf("annualYield wiped out = %v, want -1", got)
	}
	if got := annualYield(100, 110, 0); got != 0 {
		t.Errorf("annualYield no days = %v, want 0", got)
	}
}

func TestCompute_WinRateAcrossDays(t *testing.T) {
	snaps := []model.DailySnapshot{
		snap(d1, 1_000_000, 1_000_000, trade(d1, model.DirectionBuy, model.OffsetOpen, 2, 100)),
		snap(d2, 1_000_000, 1_000_050,
			trade(d2, model.DirectionSell, model.OffsetClose, 1, 110),
			trade(d2, model.DirectionSell, model.OffsetClose, 1, 95),
		),
	}
	r := Compute(snaps, 1_000_000, 0)

	if r.ProfitVolume != 1 || r.LossVolume != 1 {
		t.Errorf("volumes = %d/%d, want 1/1", r.ProfitVolume, r.LossVolume)
	}
	if !near(r.WinRate, 0.5) {
		t.Errorf("WinRate = %v, want 0.5", r.WinRate)
	}
	if !near(float64(r.ProfitLossRatio), 2) {
		t.Errorf("ProfitLossRatio = %v, want 2", r.ProfitLossRatio)
	}
}

func TestCompute_NoLosses(t *testing.T) {
	snaps := []model.DailySnapshot{
		snap(d1, 100, 100, trade(d1, model.DirectionSell, model.OffsetOpen, 1, 100)),
		snap(d2, 100, 150, trade(d2, model.DirectionBuy, model.OffsetClose, 1, 95)),
	}
	r := Compute(snaps, 100, 0)

	if r.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", r.WinRate)
	}
	if !math.IsInf(float64(r.ProfitLossRatio), 1) {
		t.Errorf("ProfitLossRatio = %v, want +Inf", r.ProfitLossRatio)
	}
}

func TestReplayWins_CloseTodayAndZeroProfit(t *testing.T) {
	snaps := []model.DailySnapshot{
		snap(d1, 100, 100, trade(d1, model.DirectionBuy, model.OffsetOpen, 1, 100)),
		snap(d2, 100, 100,
			trade(d2, model.DirectionBuy, model.OffsetOpen, 1, 120),
			// Matches the 120 lot opened today, not the older 100 lot.
			trade(d2, model.DirectionSell, model.OffsetCloseToday, 1, 110),
			// Closes the 100 lot at cost.
			trade(d2, model.DirectionSell, model.OffsetClose, 1, 100),
		),
	}
	w := replayWins(snaps)

	if w.profitVolume != 0 || w.lossVolume != 2 {
		t.Errorf("volumes = %d/%d, want 0/2", w.profitVolume, w.lossVolume)
	}
	if !near(w.lossSum, -100) {
		t.Errorf("lossSum = %v, want -100", w.lossSum)
	}
	if w.profitLossRatio() != 0 {
		t.Errorf("profitLossRatio = %v, want 0", w.profitLossRatio())
	}
}

// Package stats computes end-of-run performance statistics from the daily
// settlement snapshots.
package stats

import (
	"math"
	"slices"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/rickgao/tradesim/internal/model"
)

// TradingDaysPerYear annualizes daily figures.
const TradingDaysPerYear = 252

// Report is the statistics summary of one run.
type Report struct {
	InitBalance     float64     `json:"init_balance"`
	FinalBalance    float64     `json:"balance"`
	TradingDays     int         `json:"trading_days"`
	TotalReturn     float64     `json:"ror"`
	AnnualYield     float64     `json:"annual_yield"`
	MaxDrawdown     float64     `json:"max_drawdown"`
	SharpeRatio     model.Ratio `json:"sharpe_ratio"`
	WinRate         float64     `json:"winning_rate"`
	ProfitLossRatio model.Ratio `json:"profit_loss_ratio"`
	ProfitVolume    int64       `json:"profit_volumes"`
	LossVolume      int64       `json:"loss_volumes"`
	DailyYields     []float64   `json:"daily_yields"`
}

// Compute builds the report. riskFree is a per-trading-day rate.
func Compute(snapshots []model.DailySnapshot, initBalance, riskFree float64) Report {
	r := Report{
		InitBalance:  initBalance,
		FinalBalance: initBalance,
		TradingDays:  len(snapshots),
	}
	if len(snapshots) > 0 {
		r.FinalBalance = snapshots[len(snapshots)-1].Account.Balance
	}
	if initBalance > 0 {
		r.TotalReturn = r.FinalBalance/initBalance - 1
	}

	r.MaxDrawdown = maxDrawdown(snapshots, initBalance)
	r.DailyYields = dailyYields(snapshots)
	r.SharpeRatio = model.Ratio(sharpe(r.DailyYields, riskFree))
	r.AnnualYield = annualYield(initBalance, r.FinalBalance, len(snapshots))

	w := replayWins(snapshots)
	r.ProfitVolume = w.profitVolume
	r.LossVolume = w.lossVolume
	r.WinRate = w.winRate()
	r.ProfitLossRatio = model.Ratio(w.profitLossRatio())

	return r
}

func maxDrawdown(snapshots []model.DailySnapshot, initBalance float64) float64 {
	peak := initBalance
	var worst float64
	for _, s := range snapshots {
		bal := s.Account.Balance
		if bal > peak {
			peak = bal
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - bal) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

func dailyYields(snapshots []model.DailySnapshot) []float64 {
	out := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		var y float64
		if s.Account.PreBalance > 0 {
			y = s.Account.Balance/s.Account.PreBalance - 1
		}
		out = append(out, y)
	}
	return out
}

// sharpe is √252 × (mean − rf) / stddev with a population stddev; +Inf when
// the yields do not vary.
func sharpe(yields []float64, riskFree float64) float64 {
	n := len(yields)
	if n == 0 {
		return 0
	}
	if slices.Min(yields) == slices.Max(yields) {
		return math.Inf(1)
	}
	mean := talib.Sma(yields, n)[n-1]

	// talib.StdDev floors small variances to zero, so take the root of the
	// variance of the deviations instead.
	dev := make([]float64, n)
	for i, y := range yields {
		dev[i] = y - mean
	}
	variance := talib.Var(dev, n)[n-1]
	if variance <= 0 {
		return math.Inf(1)
	}
	return math.Sqrt(TradingDaysPerYear) * (mean - riskFree) / math.Sqrt(variance)
}

func annualYield(initBalance, finalBalance float64, days int) float64 {
	if days == 0 || initBalance <= 0 {
		return 0
	}
	growth := finalBalance / initBalance
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, float64(TradingDaysPerYear)/float64(days)) - 1
}

type openLot struct {
	volume int64
	price  float64
	day    time.Time
}

type winTally struct {
	profitVolume int64
	lossVolume   int64
	profitSum    float64
	lossSum      float64
}

// replayWins pairs closing fills with opening fills FIFO per symbol and side.
// A closed lot with zero profit counts as a loss.
func replayWins(snapshots []model.DailySnapshot) winTally {
	var w winTally
	open := make(map[string][]openLot)

	for _, s := range snapshots {
		for _, tr := range s.Trades {
			side := model.PositionSideOf(tr.Direction, tr.Offset)
			key := model.PositionKey(tr.Symbol, side)

			if tr.Offset == model.OffsetOpen {
				open[key] = append(open[key], openLot{volume: tr.Volume, price: tr.Price, day: tr.TradingDay})
				continue
			}

			sign := 1.0
			if side == model.SideShort {
				sign = -1
			}
			mult := tr.Multiplier
			if mult <= 0 {
				mult = 1
			}

			remaining := tr.Volume
			lots := open[key]
			kept := lots[:0]
			for _, lot := range lots {
				if remaining == 0 || (tr.Offset == model.OffsetCloseToday && !lot.day.Equal(tr.TradingDay)) {
					kept = append(kept, lot)
					continue
				}
				take := min(remaining, lot.volume)
				pnl := (tr.Price - lot.price) * sign * mult
				if pnl > 0 {
					w.profitVolume += take
					w.profitSum += pnl * float64(take)
				} else {
					w.lossVolume += take
					w.lossSum += pnl * float64(take)
				}
				lot.volume -= take
				remaining -= take
				if lot.volume > 0 {
					kept = append(kept, lot)
				}
			}
			open[key] = kept
		}
	}
	return w
}

func (w winTally) winRate() float64 {
	total := w.profitVolume + w.lossVolume
	if total == 0 {
		return 0
	}
	return float64(w.profitVolume) / float64(total)
}

// profitLossRatio is the average profit per winning lot over the absolute
// average loss per losing lot; +Inf without losses, 0 without closed lots.
func (w winTally) profitLossRatio() float64 {
	if w.profitVolume == 0 {
		return 0
	}
	avgProfit := w.profitSum / float64(w.profitVolume)
	if w.lossVolume == 0 || w.lossSum == 0 {
		return math.Inf(1)
	}
	avgLoss := math.Abs(w.lossSum / float64(w.lossVolume))
	return avgProfit / avgLoss
}

// simclient connects to a running simulator, drives the diff stream with
// peeks and prints what arrives until the run finishes.
// Usage: go run ./cmd/simclient --url ws://localhost:7777/ws --symbols SHFE.cu2401
//
// With --volume > 0 it buys that many lots at market on the first quote of
// every symbol, which is enough to exercise fills and settlement end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/tradesim/internal/diff"
	"github.com/rickgao/tradesim/internal/dispatch"
	"github.com/rickgao/tradesim/internal/model"
	"github.com/rickgao/tradesim/internal/transport"
)

func main() {
	url := flag.String("url", "ws://localhost:7777/ws", "simulator websocket url")
	symbols := flag.String("symbols", "", "comma separated symbols to subscribe")
	volume := flag.Int64("volume", 0, "lots to buy at market on each symbol's first quote")
	verbose := flag.Bool("verbose", false, "print every diff as JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := transport.DefaultClientConfig()
	cfg.URL = *url
	client := transport.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if *symbols != "" {
		if err := client.SubscribeQuote(strings.Split(*symbols, ",")...); err != nil {
			logger.Error("subscribe failed", "error", err)
			os.Exit(1)
		}
	}

	state := diff.NewState()
	counts := make(map[diff.Kind]int)
	bought := make(map[string]bool)
	start := time.Now()

	if err := client.Peek(); err != nil {
		logger.Error("peek failed", "error", err)
		os.Exit(1)
	}

	for {
		select {
		case <-ctx.Done():
			printSummary(logger, state, counts, start)
			return

		case err := <-client.Errors():
			logger.Error("connection error", "error", err)
			printSummary(logger, state, counts, start)
			os.Exit(1)

		case msg := <-client.Messages():
			switch msg.Aid {
			case transport.AidRtnError:
				if msg.Request == transport.AidPeekMessage && msg.Error == dispatch.ErrClosed.Error() {
					logger.Info("stream closed by simulator")
					printSummary(logger, state, counts, start)
					return
				}
				logger.Warn("request failed", "request", msg.Request, "error", msg.Error)
				continue

			case transport.AidRtnData:
				state.Apply(msg.Data...)
				for _, d := range msg.Data {
					counts[d.Kind]++
					printDiff(logger, d, *verbose)

					if d.Kind == diff.KindQuote && *volume > 0 && !bought[d.Key] {
						bought[d.Key] = true
						buy(logger, client, d.Key, *volume)
					}
				}
				if err := client.Peek(); err != nil {
					logger.Error("peek failed", "error", err)
					os.Exit(1)
				}
			}
		}
	}
}

func buy(logger *slog.Logger, client transport.Client, symbol string, volume int64) {
	id, err := client.InsertOrder(dispatch.InsertOrderRequest{
		Symbol:    symbol,
		Direction: model.DirectionBuy,
		Offset:    model.OffsetOpen,
		PriceType: model.PriceTypeAny,
		Volume:    volume,
	})
	if err != nil {
		logger.Error("insert order failed", "symbol", symbol, "error", err)
		return
	}
	logger.Info("order sent", "order_id", id, "symbol", symbol, "volume", volume)
}

func printDiff(logger *slog.Logger, d diff.Diff, verbose bool) {
	if verbose {
		data, _ := json.Marshal(d)
		logger.Debug("diff", "json", string(data))
		return
	}

	switch d.Kind {
	case diff.KindTrade:
		t := d.Trade
		logger.Info("trade",
			"trade_id", t.TradeID,
			"symbol", t.Symbol,
			"direction", t.Direction,
			"offset", t.Offset,
			"volume", t.Volume,
			"price", t.Price,
			"close_profit", t.CloseProfit,
		)
	case diff.KindOrder:
		if d.Order.Status == model.StatusFinished {
			logger.Info("order finished", "order_id", d.Order.OrderID, "msg", d.Order.LastMsg)
		}
	case diff.KindSnapshot:
		s := d.Snapshot
		logger.Info("trading day settled",
			"trading_day", s.TradingDay.Format("2006-01-02"),
			"balance", s.Account.Balance,
			"trades", len(s.Trades),
			"gap", s.Gap,
		)
	case diff.KindNotify:
		logger.Info("notify", "level", d.Notify.Level, "code", d.Notify.Code, "content", d.Notify.Content)
	}
}

func printSummary(logger *slog.Logger, state *diff.State, counts map[diff.Kind]int, start time.Time) {
	logger.Info("=== SUMMARY ===",
		"duration", time.Since(start).Round(time.Millisecond),
		"quotes", counts[diff.KindQuote],
		"orders", counts[diff.KindOrder],
		"trades", counts[diff.KindTrade],
		"positions", counts[diff.KindPosition],
		"accounts", counts[diff.KindAccount],
		"snapshots", counts[diff.KindSnapshot],
		"notifies", counts[diff.KindNotify],
	)
	logger.Info("account",
		"balance", state.Account.Balance,
		"available", state.Account.Available,
		"margin", state.Account.Margin,
		"commission", state.Account.Commission,
		"close_profit", state.Account.CloseProfit,
	)
	if r := state.Report; r != nil {
		logger.Info("report",
			"trading_days", r.TradingDays,
			"ror", r.TotalReturn,
			"annual_yield", r.AnnualYield,
			"max_drawdown", r.MaxDrawdown,
			"sharpe_ratio", float64(r.SharpeRatio),
			"winning_rate", r.WinRate,
			"profit_loss_ratio", float64(r.ProfitLossRatio),
		)
	}
}

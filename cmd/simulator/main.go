// simulator replays recorded quotes from Postgres against a simulated account
// and serves the diff stream to one strategy over a websocket.
//
// Usage: go run ./cmd/simulator --config configs/simulator.example.yaml
//
// Environment variables referenced by the config (e.g. ${TRADESIM_DB_PASSWORD})
// may be placed in a .env file next to the binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tradesim/internal/calendar"
	"github.com/rickgao/tradesim/internal/config"
	"github.com/rickgao/tradesim/internal/database"
	"github.com/rickgao/tradesim/internal/dispatch"
	"github.com/rickgao/tradesim/internal/feed"
	"github.com/rickgao/tradesim/internal/ledger"
	"github.com/rickgao/tradesim/internal/logging"
	"github.com/rickgao/tradesim/internal/metrics"
	"github.com/rickgao/tradesim/internal/poller"
	"github.com/rickgao/tradesim/internal/settlement"
	"github.com/rickgao/tradesim/internal/transport"
	"github.com/rickgao/tradesim/internal/version"
	"github.com/rickgao/tradesim/internal/writer"
)

// feedReadAhead is how many quotes Pump may read before the dispatcher asks.
const feedReadAhead = 256

func main() {
	configPath := flag.String("config", "configs/simulator.local.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional env file loaded before the config")
	flag.Parse()

	// Bootstrap logger until the configured one exists
	boot := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(*envFile); err != nil {
		boot.Info("no env file loaded, using environment", "path", *envFile)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		boot.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		boot.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting simulator",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("simulator failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info("simulator stopped")
}

func run(ctx context.Context, cfg *config.SimulatorConfig, logger *slog.Logger) error {
	m := metrics.New()

	// Database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("database connected")

	// Simulation core
	l, err := ledger.New(cfg.Account.InitBalance)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	calCfg, err := cfg.CalendarSettings()
	if err != nil {
		return err
	}
	cal, err := calendar.NewWeekday(calCfg)
	if err != nil {
		return fmt.Errorf("create calendar: %w", err)
	}
	proc := settlement.NewProcessor(l, cal, logger)

	events := make(chan feed.Event, feedReadAhead)
	src := feed.NewPostgresSource(pool, feed.PostgresConfig{
		Table:   cfg.Feed.Table,
		Symbols: cfg.Instruments,
		Start:   cfg.Feed.Start,
		End:     cfg.Feed.End,
	}, logger)
	defer src.Close()

	d, err := dispatch.New(cfg.DispatchSettings(), l, proc, events, logger, dispatch.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	// Writers
	runID := cfg.Instance.ID + "-" + uuid.NewString()[:8]
	snapWriter := writer.NewSnapshotWriter(writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}, runID, d.Snapshots(), pool, m, logger)
	if err := snapWriter.Start(ctx); err != nil {
		return fmt.Errorf("start snapshot writer: %w", err)
	}

	var serverOpts []transport.Option
	var publisher *writer.KafkaPublisher
	if cfg.Kafka.Enabled {
		kw := writer.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BatchTimeout)
		publisher = writer.NewKafkaPublisher(kw, cfg.Writers.BatchSize, m, logger)
		if err := publisher.Start(ctx); err != nil {
			return fmt.Errorf("start kafka publisher: %w", err)
		}
		serverOpts = append(serverOpts, transport.WithMirror(publisher.Mirror))
		logger.Info("mirroring diffs to kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	progress := poller.New(poller.Config{Interval: cfg.Progress.Interval}, d, nil, logger)
	if err := progress.Start(ctx); err != nil {
		return fmt.Errorf("start progress poller: %w", err)
	}

	// Servers
	wsServer := transport.NewServer(d, transport.DefaultServerConfig(), logger, serverOpts...)
	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", wsServer)
	streamServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: wsMux}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(cfg, pool, d, wsServer, m, runID),
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return ignoreCanceled(feed.Pump(gctx, src, events))
	})
	g.Go(func() error {
		return ignoreCanceled(d.Run(gctx))
	})
	g.Go(func() error {
		logger.Info("starting stream server", "addr", cfg.Server.ListenAddr)
		if err := streamServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stream server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// The run is over once every diff went out and every snapshot is stored.
		select {
		case <-d.Done():
		case <-gctx.Done():
			return nil
		}
		select {
		case <-snapWriter.Done():
		case <-gctx.Done():
			return nil
		}
		logger.Info("replay complete", "run_id", runID)
		stopRun()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		streamServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	logger.Info("simulator running",
		"run_id", runID,
		"instruments", len(cfg.Instruments),
		"stream_url", fmt.Sprintf("ws://localhost%s/ws", cfg.Server.ListenAddr),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	runErr := g.Wait()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	progress.Stop(shutdownCtx)
	snapWriter.Stop(shutdownCtx)
	if publisher != nil {
		if err := publisher.Stop(shutdownCtx); err != nil {
			logger.Warn("kafka publisher stop failed", "error", err)
		}
	}

	logStats(logger, d, snapWriter, wsServer)
	if report, ok := d.Report(); ok {
		logger.Info("final report",
			"trading_days", report.TradingDays,
			"balance", report.FinalBalance,
			"ror", report.TotalReturn,
			"annual_yield", report.AnnualYield,
			"max_drawdown", report.MaxDrawdown,
			"sharpe_ratio", float64(report.SharpeRatio),
			"winning_rate", report.WinRate,
			"profit_loss_ratio", float64(report.ProfitLossRatio),
		)
	}

	return runErr
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logStats(logger *slog.Logger, d *dispatch.Dispatcher, sw *writer.SnapshotWriter, srv *transport.Server) {
	ds := d.Stats()
	ws := sw.Stats()
	ss := srv.Stats()
	logger.Info("run statistics",
		"events", ds.EventsProcessed,
		"quotes_routed", ds.QuotesRouted,
		"orders", ds.OrdersInserted,
		"rejected", ds.OrdersRejected,
		"trades", ds.Trades,
		"settlements", ds.Settlements,
		"gaps", ds.Gaps,
		"diffs_delivered", ds.DiffsDelivered,
		"rows_written", ws.Inserts,
		"write_errors", ws.Errors,
		"sessions", ss.Sessions,
	)
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(
	cfg *config.SimulatorConfig,
	pool *pgxpool.Pool,
	d *dispatch.Dispatcher,
	srv *transport.Server,
	m *metrics.Metrics,
	runID string,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(cfg.Metrics.Path, m.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			RunID      string         `json:"run_id"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			RunID:      runID,
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		ds := d.Stats()
		health.Components["dispatcher"] = map[string]any{
			"finished":       ds.Finished,
			"actors":         ds.Actors,
			"events":         ds.EventsProcessed,
			"buffered_diffs": ds.DiffBuffer.Count,
		}
		health.Components["stream"] = srv.Stats()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.Get())
	})

	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		report, ok := d.Report()
		if !ok {
			http.Error(w, "run still in progress", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	})

	return mux
}

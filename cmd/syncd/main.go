// Syncd is the availability synchronization daemon.
//
// It reconciles day-level availability calendars for rental properties from
// vendor pages and iCal feeds, serving the results and the sync command
// surface over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/stayloop/availsync/internal/metrics"
	"github.com/stayloop/availsync/internal/migrations"
	"github.com/stayloop/availsync/internal/scrape"
	"github.com/stayloop/availsync/internal/server"
	"github.com/stayloop/availsync/internal/sqlite"
	"github.com/stayloop/availsync/internal/syncer"
	"github.com/stayloop/availsync/logger"
)

type config struct {
	Port     int    `env:"PORT, default=4444"`
	Database string `env:"DATABASE, required"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`

	CorsHeader string `env:"CORS_HEADER, default=*"`

	// How often the periodic full sync runs. Zero disables it; syncs then
	// only happen on demand over HTTP.
	SyncInterval     time.Duration `env:"SYNC_INTERVAL, default=1h"`
	MaxParallelSyncs int           `env:"MAX_PARALLEL_SYNCS, default=5"`
	InterBatchDelay  time.Duration `env:"INTER_BATCH_DELAY, default=2s"`
	SyncTimeout      time.Duration `env:"SYNC_TIMEOUT, default=15m"`
	StaleAfter       time.Duration `env:"STALE_AFTER, default=24h"`
	MaxRetries       int           `env:"MAX_RETRIES, default=3"`
	RetryDelay       time.Duration `env:"RETRY_DELAY, default=5s"`
	FeedTimeout      time.Duration `env:"FEED_TIMEOUT, default=30s"`
	ChainThreshold   int           `env:"CHAIN_SUCCESS_THRESHOLD, default=30"`
	Policy           string        `env:"CONSOLIDATION_POLICY, default=scraping_priority"`

	Headless               bool    `env:"HEADLESS, default=true"`
	ScrapeRate             float64 `env:"SCRAPE_RATE_PER_SECOND, default=0.5"`
	ScrapeBurst            int     `env:"SCRAPE_BURST, default=1"`
	StrategyTimeoutSeconds int     `env:"STRATEGY_TIMEOUT_SECONDS, default=45"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "port", cfg.Port, "sync_interval", cfg.SyncInterval)

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Retry until the database file is actually reachable
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		if err := dbx.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("error pinging database: %s", err)
	}

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	repo := sqlite.New(dbx)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	orch := syncer.NewOrchestrator(repo, repo, repo, repo, syncer.NewRegistry(), syncer.Config{
		MaxParallelSyncs: cfg.MaxParallelSyncs,
		InterBatchDelay:  cfg.InterBatchDelay,
		SyncTimeout:      cfg.SyncTimeout,
		StaleAfter:       cfg.StaleAfter,
		Policy:           syncer.Policy(cfg.Policy),
		MaxRetries:       cfg.MaxRetries,
		RetryDelay:       cfg.RetryDelay,
		FeedTimeout:      cfg.FeedTimeout,
		ChainThreshold:   cfg.ChainThreshold,
		StrategyTimeout:  time.Duration(cfg.StrategyTimeoutSeconds) * time.Second,
		Session: scrape.SessionConfig{
			Headless:      cfg.Headless,
			RatePerSecond: cfg.ScrapeRate,
			RateBurst:     cfg.ScrapeBurst,
		},
	}, syncer.WithRecorder(collector))
	svc := syncer.NewService(orch)

	s := server.New(server.Config{Port: cfg.Port, CorsHeader: cfg.CorsHeader}, svc, repo, repo, reg)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})
	g.Go(func() error {
		// Run the periodic full sync
		return runPeriodic(gCtx, svc, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}

func runPeriodic(ctx context.Context, svc *syncer.Service, interval time.Duration) error {
	if interval <= 0 {
		slog.Info("periodic sync disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := svc.SyncAllUnified(ctx, false)
			if err != nil {
				slog.Error("error running periodic sync", "error", err)
				continue
			}
			slog.Info("periodic sync finished",
				"queued", stats.Queued,
				"succeeded", stats.Succeeded,
				"failed", stats.Failed,
			)
		}
	}
}

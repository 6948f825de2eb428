package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alvmarrod/proxy-weaver/internal/api"
	"github.com/alvmarrod/proxy-weaver/internal/config"
	"github.com/alvmarrod/proxy-weaver/internal/crawler"
	"github.com/alvmarrod/proxy-weaver/internal/memory"
	"github.com/alvmarrod/proxy-weaver/internal/metrics"
	"github.com/alvmarrod/proxy-weaver/internal/storage"
	"github.com/alvmarrod/proxy-weaver/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const progressLogInterval = 10 * time.Second

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run the crawl rounds and persist domains and proxy candidates",
	RunE:  runCrawl,
}

func init() {
	f := crawlCmd.Flags()
	f.Int("rounds", 5, "number of crawl rounds")
	f.Int("max-parallel", 80, "maximum concurrent fetches")
	f.Int("min-delay-ms", 100, "minimum per-host delay in milliseconds")
	f.Int("max-delay-ms", 3000, "maximum per-host delay in milliseconds")
	f.Int("flush-interval-sec", 60, "seconds between periodic state flushes")
	f.Int("request-timeout-ms", 8000, "per-request fetch timeout in milliseconds")
	f.String("domain-csv", "domains.csv", "domain table path (csv backend)")
	f.String("proxy-csv", "proxies.csv", "proxy table path (csv backend)")
	f.String("backend", storage.BackendCSV, "persistence backend: csv or sqlite")
	f.String("db-path", "crawler.db", "database path (sqlite backend)")
	f.String("seed-url", "https://news.ycombinator.com", "start URL when no domains are known")
	f.String("user-agent", "PCrawler/Percent", "User-Agent header sent with every fetch")
	f.String("metrics-path", "metrics.json", "where run metrics are written on exit")
	f.String("metrics-addr", "", "listen address for /metrics, /healthz and /progress (disabled when empty)")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	logrus.Infof("Proxy Weaver %s starting...", version.Get())

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	logrus.Infof("Configuration loaded: rounds=%d, parallel=%d, delay=%d-%dms, backend=%s",
		cfg.Rounds, cfg.MaxParallel, cfg.MinDelayMs, cfg.MaxDelayMs, cfg.Backend)

	store, err := storage.Open(cfg.Backend, cfg.DomainCSV, cfg.ProxyCSV, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	state := memory.NewCrawlState()
	persister := storage.NewPersister(store, state)
	collectors := metrics.NewCollectors()
	tracker := metrics.NewTracker(collectors)

	c := crawler.NewCrawler(cfg, state, persister, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logrus.Infof("Serving metrics on %s", cfg.MetricsAddr)
			if err := api.Serve(ctx, cfg.MetricsAddr, api.NewRouter(collectors, tracker, state)); err != nil {
				logrus.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	// First signal cancels the crawl; a second one forces exit after an
	// emergency save
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		logrus.Infof("Received signal: %v, finishing in-flight fetches...", sig)
		cancel()

		sig, ok = <-sigChan
		if !ok {
			return
		}
		logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
		logrus.Warn("Attempting emergency save...")

		if _, err := persister.Flush(); err != nil {
			logrus.Errorf("Emergency flush failed: %v", err)
		} else {
			logrus.Info("Emergency flush succeeded")
		}
		if err := tracker.WriteToFile(cfg.MetricsPath, "forced_exit"); err != nil {
			logrus.Errorf("Emergency metrics save failed: %v", err)
		}
		os.Exit(1)
	}()

	stopProgress := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(progressLogInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	runErr := c.Run(ctx)

	reason := "completed"
	if errors.Is(runErr, context.Canceled) {
		reason = "signal"
		runErr = nil
	}

	close(stopProgress)
	cancel()
	wg.Wait()

	logrus.Info("Final stats: " + tracker.LogProgress())

	if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	if runErr != nil {
		return runErr
	}

	logrus.Info("Crawl finished. Goodbye!")
	return nil
}

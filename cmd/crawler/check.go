package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alvmarrod/proxy-weaver/internal/checker"
	"github.com/alvmarrod/proxy-weaver/internal/config"
	"github.com/alvmarrod/proxy-weaver/internal/memory"
	"github.com/alvmarrod/proxy-weaver/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var pendingOnly bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe stored proxy candidates and record OK/FAILED with latency",
	RunE:  runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.BoolVar(&pendingOnly, "pending-only", false, "only probe candidates still marked PENDING")
	f.String("proxy-csv", "proxies.csv", "proxy table path (csv backend)")
	f.String("domain-csv", "domains.csv", "domain table path (csv backend)")
	f.String("backend", storage.BackendCSV, "persistence backend: csv or sqlite")
	f.String("db-path", "crawler.db", "database path (sqlite backend)")
	f.String("probe-url", "http://www.google.com", "URL requested through each proxy")
	f.Int("probe-timeout-ms", 5000, "per-probe timeout in milliseconds")
	f.Int("probe-parallel", 20, "maximum concurrent probes")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Backend, cfg.DomainCSV, cfg.ProxyCSV, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	proxies, err := store.LoadProxies()
	if err != nil {
		return fmt.Errorf("failed to load proxies: %w", err)
	}

	state := memory.NewCrawlState()
	for _, p := range proxies {
		state.PutProxy(p)
	}
	logrus.Infof("Probing %d proxy candidates via %s", len(proxies), cfg.ProbeURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prober := checker.NewCollyProber(cfg.ProbeURL, cfg.ProbeTimeout(), cfg.UserAgent)
	summary, checkErr := checker.NewChecker(prober, cfg.ProbeParallel).Check(ctx, state, pendingOnly)

	// Save whatever was probed, even when interrupted
	if err := store.SaveProxies(state.ProxySnapshot()); err != nil {
		return fmt.Errorf("failed to save proxies: %w", err)
	}

	logrus.Infof("Checked %d proxies: %d OK, %d FAILED", summary.Checked, summary.OK, summary.Failed)
	if checkErr != nil {
		logrus.Warnf("Check interrupted: %v", checkErr)
	}
	return nil
}

package checker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alvmarrod/proxy-weaver/internal/memory"
	"github.com/alvmarrod/proxy-weaver/internal/storage"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Prober issues one request through a proxy and reports how long it took
type Prober interface {
	Probe(ctx context.Context, address string) (time.Duration, error)
}

// CollyProber fetches probeURL through an HTTP proxy using a fresh colly
// collector per probe, so proxy settings never leak between probes
type CollyProber struct {
	probeURL  string
	timeout   time.Duration
	userAgent string
}

// NewCollyProber creates a prober targeting probeURL
func NewCollyProber(probeURL string, timeout time.Duration, userAgent string) *CollyProber {
	return &CollyProber{probeURL: probeURL, timeout: timeout, userAgent: userAgent}
}

// Probe implements Prober
func (p *CollyProber) Probe(ctx context.Context, address string) (time.Duration, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(p.userAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(p.timeout)

	if err := c.SetProxy("http://" + address); err != nil {
		return 0, fmt.Errorf("invalid proxy %s: %w", address, err)
	}

	start := time.Now()
	if err := c.Visit(p.probeURL); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

// Summary counts probe outcomes
type Summary struct {
	Checked int
	OK      int
	Failed  int
}

// Checker probes proxy candidates held in the crawl state and records the
// outcome as their status
type Checker struct {
	prober   Prober
	parallel int
}

// NewChecker creates a checker running at most parallel probes at once
func NewChecker(prober Prober, parallel int) *Checker {
	if parallel < 1 {
		parallel = 1
	}
	return &Checker{prober: prober, parallel: parallel}
}

// Check probes every candidate (only PENDING ones if pendingOnly) and
// writes OK with the latency in ms, or FAILED with no latency. Candidates
// not probed before ctx is cancelled keep their status.
func (c *Checker) Check(ctx context.Context, state *memory.CrawlState, pendingOnly bool) (Summary, error) {
	var ok, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(c.parallel)

	for _, p := range state.ProxySnapshot() {
		if pendingOnly && p.Status != storage.StatusPending {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			latency, err := c.prober.Probe(ctx, p.Address)
			if ctx.Err() != nil {
				return nil
			}

			if err != nil {
				logrus.Debugf("Proxy %s failed: %v", p.Address, err)
				state.PutProxy(storage.ProxyCandidate{Address: p.Address, Status: storage.StatusFailed})
				failed.Add(1)
				return nil
			}

			logrus.Debugf("Proxy %s OK in %v", p.Address, latency)
			state.PutProxy(storage.ProxyCandidate{
				Address: p.Address,
				Status:  storage.StatusOK,
				Latency: strconv.FormatInt(latency.Milliseconds(), 10),
			})
			ok.Add(1)
			return nil
		})
	}

	// Probe outcomes are recorded in state; the goroutines never fail
	g.Wait()

	summary := Summary{OK: int(ok.Load()), Failed: int(failed.Load())}
	summary.Checked = summary.OK + summary.Failed
	return summary, ctx.Err()
}

package crawler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alvmarrod/proxy-weaver/internal/config"
	"github.com/alvmarrod/proxy-weaver/internal/memory"
	"github.com/alvmarrod/proxy-weaver/internal/metrics"
	"github.com/alvmarrod/proxy-weaver/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Crawler runs rounds of fetches over the known root domains, least-visited
// first, harvesting proxy candidates and links from every page
type Crawler struct {
	cfg       *config.Config
	state     *memory.CrawlState
	persister *storage.Persister
	tracker   *metrics.Tracker
	rate      *RateController
	sem       *semaphore.Weighted
	sink      Sink
	fetcher   Fetcher
}

// Option customises a Crawler
type Option func(*Crawler)

// WithFetcher replaces the default colly fetcher
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) {
		c.fetcher = f
	}
}

// WithSink sets where progress lines go. Defaults to LogSink.
func WithSink(s Sink) Option {
	return func(c *Crawler) {
		c.sink = s
	}
}

// NewCrawler creates a new crawler instance
func NewCrawler(cfg *config.Config, state *memory.CrawlState, persister *storage.Persister, tracker *metrics.Tracker, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:       cfg,
		state:     state,
		persister: persister,
		tracker:   tracker,
		rate:      NewRateController(cfg.MinDelayMs, cfg.MaxDelayMs),
		sem:       semaphore.NewWeighted(int64(cfg.MaxParallel)),
		sink:      LogSink{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run loads persisted state, crawls the configured number of rounds and
// flushes state a last time before returning. Cancelling ctx stops new
// fetches from starting; in-flight ones unwind and the final flush still
// runs. Returns ctx.Err() when cancelled, or a load error.
func (c *Crawler) Run(ctx context.Context) error {
	c.tracker.Reset()
	c.state.ResetRun()

	domains, proxies, err := c.persister.Load(c.state)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	logrus.Infof("Loaded %d domains and %d proxy candidates", domains, proxies)

	fetcher := c.fetcher
	if fetcher == nil {
		fetcher = NewCollyFetcher(ctx, FetcherOptions{
			UserAgent: c.cfg.UserAgent,
			Timeout:   c.cfg.RequestTimeout(),
		})
	}

	frontier := NewFrontier()
	c.seed(frontier)

	// Periodic flush runs beside the rounds and only reads snapshots
	flushCtx, stopFlush := context.WithCancel(ctx)
	var flushWG sync.WaitGroup
	flushWG.Add(1)
	go func() {
		defer flushWG.Done()
		c.persister.Run(flushCtx, c.cfg.FlushInterval(), c.onFlush)
	}()

	for round := 1; round <= c.cfg.Rounds; round++ {
		if ctx.Err() != nil {
			logrus.Infof("Crawl cancelled before round %d", round)
			break
		}

		c.sink.Log(fmt.Sprintf("Round %d/%d", round, c.cfg.Rounds))
		c.tracker.StartRound(round)

		logrus.Debugf("Round %d: %d URLs queued", round, frontier.Size())
		batch := frontier.Drain(c.visitCount)
		c.runRound(ctx, fetcher, batch)

		// Domains discovered this round and not fetched yet feed the next one
		for _, d := range c.state.Unprocessed() {
			frontier.Push(DomainURL(d))
		}
	}

	stopFlush()
	flushWG.Wait()

	c.onFlush(c.persister.Flush())

	return ctx.Err()
}

// seed fills the first frontier from the loaded domain table, falling back
// to the configured seed URL when the table is empty
func (c *Crawler) seed(frontier *Frontier) {
	domains := c.state.Domains()
	for _, d := range domains {
		frontier.Push(DomainURL(d))
	}
	if len(domains) > 0 {
		return
	}

	logrus.Infof("No known domains, starting from seed %s", c.cfg.SeedURL)
	frontier.Push(c.cfg.SeedURL)
	if root := RootOf(c.cfg.SeedURL); root != "" {
		c.state.RegisterDomain(root)
	}
}

// runRound dispatches batch in order, one semaphore slot per job, and waits
// for every dispatched job. Dispatch stops when ctx is cancelled.
func (c *Crawler) runRound(ctx context.Context, fetcher Fetcher, batch []string) {
	total := len(batch)
	var completed atomic.Int64
	var wg sync.WaitGroup

	for _, u := range batch {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.sem.Release(1)

			c.visit(ctx, fetcher, u)

			n := completed.Add(1)
			if pct, ok := c.tracker.ReportProgress(int(n), total); ok {
				c.sink.Log(fmt.Sprintf("%d%% - Links:%d - Proxies:%d",
					pct, c.tracker.LinksFound(), c.tracker.ProxiesFound()))
			}
		}()
	}

	wg.Wait()
}

func (c *Crawler) visitCount(root string) int {
	n, _ := c.state.VisitCount(root)
	return n
}

// onFlush reports a flush outcome. A failed flush is logged and the crawl
// continues; the next flush rewrites the full tables anyway.
func (c *Crawler) onFlush(result storage.FlushResult, err error) {
	c.tracker.RecordFlush(err)
	if err != nil {
		logrus.Errorf("State flush failed: %v", err)
		c.sink.Log(fmt.Sprintf("Flush failed: %v", err))
		return
	}
	c.sink.Log(fmt.Sprintf("Saved %d domains, %d proxies", result.Domains, result.Proxies))
}

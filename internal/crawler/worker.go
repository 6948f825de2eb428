package crawler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// visit is one fetch job. The caller holds a semaphore slot for the whole
// call. A domain already processed this run is skipped before any delay or
// count is spent.
func (c *Crawler) visit(ctx context.Context, fetcher Fetcher, rawURL string) {
	root := RootOf(rawURL)
	if root == "" {
		logrus.Debugf("Skipping unparsable URL %q", rawURL)
		return
	}

	if !c.state.MarkProcessed(root) {
		return
	}

	// Every attempt counts, whatever its outcome
	c.state.IncrementVisit(root)

	delay := c.rate.Delay(root)
	c.tracker.ObserveDelay(delay)
	if err := sleepContext(ctx, time.Duration(delay)*time.Millisecond); err != nil {
		return
	}

	start := time.Now()
	body, err := fetcher.Fetch(ctx, rawURL)
	c.tracker.RecordFetchTime(time.Since(start))

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-request; the host did nothing wrong
			return
		}
		c.rate.OnFailure(root)
		c.tracker.IncrementPagesFailed()
		logrus.Debugf("Fetch failed for %s (next delay %dms): %v", rawURL, c.rate.Delay(root), err)
		return
	}

	c.rate.OnSuccess(root)
	c.tracker.IncrementPagesFetched()
	logrus.Debugf("Fetched %s (%d bytes)", rawURL, len(body))

	c.harvest(body)
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

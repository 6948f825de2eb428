package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Snapshotter exposes a live, unsorted copy of both datasets. Each element
// is a complete row taken under the source's own lock.
type Snapshotter interface {
	DomainSnapshot() []DomainRecord
	ProxySnapshot() []ProxyCandidate
}

// Loader receives rows read back from a store at startup
type Loader interface {
	SetDomain(domain string, count int)
	PutProxy(p ProxyCandidate)
}

// FlushResult describes one completed flush
type FlushResult struct {
	Domains  int
	Proxies  int
	Duration time.Duration
}

// Persister snapshots the crawl state into a Store. Domains and proxies are
// guarded by separate locks: the two datasets may be written concurrently,
// the same dataset never is.
type Persister struct {
	store    Store
	source   Snapshotter
	domainMu sync.Mutex
	proxyMu  sync.Mutex
}

// NewPersister creates a persister reading from source and writing to store
func NewPersister(store Store, source Snapshotter) *Persister {
	return &Persister{store: store, source: source}
}

// Load copies both datasets from the store into dst
func (p *Persister) Load(dst Loader) (domains, proxies int, err error) {
	records, err := p.store.LoadDomains()
	if err != nil {
		return 0, 0, err
	}
	for _, r := range records {
		dst.SetDomain(r.Domain, r.CallCount)
	}

	candidates, err := p.store.LoadProxies()
	if err != nil {
		return len(records), 0, err
	}
	for _, c := range candidates {
		dst.PutProxy(c)
	}

	return len(records), len(candidates), nil
}

// Flush writes the full domain and proxy tables. It blocks until both
// writes have finished and returns the first error encountered.
func (p *Persister) Flush() (FlushResult, error) {
	start := time.Now()
	var result FlushResult
	var g errgroup.Group

	g.Go(func() error {
		p.domainMu.Lock()
		defer p.domainMu.Unlock()

		records := p.source.DomainSnapshot()
		if err := p.store.SaveDomains(records); err != nil {
			return err
		}
		result.Domains = len(records)
		return nil
	})

	g.Go(func() error {
		p.proxyMu.Lock()
		defer p.proxyMu.Unlock()

		proxies := p.source.ProxySnapshot()
		if err := p.store.SaveProxies(proxies); err != nil {
			return err
		}
		result.Proxies = len(proxies)
		return nil
	})

	err := g.Wait()
	result.Duration = time.Since(start)
	if err != nil {
		return result, fmt.Errorf("flush failed: %w", err)
	}

	logrus.Debugf("Flush complete: %d domains, %d proxies written in %v", result.Domains, result.Proxies, result.Duration)
	return result, nil
}

// Run flushes every interval until ctx is done. done is called after each
// attempt, successful or not.
func (p *Persister) Run(ctx context.Context, interval time.Duration, done func(FlushResult, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := p.Flush()
			if done != nil {
				done(result, err)
			}
		}
	}
}

package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alvmarrod/proxy-weaver/internal/storage"
)

// Tracker holds the run-scoped crawl counters. Counters are atomics so
// workers can bump them without contending on a lock.
type Tracker struct {
	linksFound   atomic.Int64
	proxiesFound atomic.Int64
	pagesFetched atomic.Int64
	pagesFailed  atomic.Int64
	flushes      atomic.Int64
	flushFailed  atomic.Int64
	lastPercent  atomic.Int32

	totalFetchTimeMs atomic.Int64
	fetchCount       atomic.Int64

	mu        sync.Mutex
	startTime time.Time
	rounds    int

	prom *Collectors
}

// NewTracker creates a new metrics tracker. prom may be nil.
func NewTracker(prom *Collectors) *Tracker {
	return &Tracker{
		startTime: time.Now(),
		prom:      prom,
	}
}

// Reset zeroes every run counter, called at the start of each run
func (t *Tracker) Reset() {
	t.linksFound.Store(0)
	t.proxiesFound.Store(0)
	t.pagesFetched.Store(0)
	t.pagesFailed.Store(0)
	t.flushes.Store(0)
	t.flushFailed.Store(0)
	t.lastPercent.Store(0)
	t.totalFetchTimeMs.Store(0)
	t.fetchCount.Store(0)

	t.mu.Lock()
	t.startTime = time.Now()
	t.rounds = 0
	t.mu.Unlock()
}

// IncrementLinksFound counts one newly seen link
func (t *Tracker) IncrementLinksFound() {
	t.linksFound.Add(1)
	if t.prom != nil {
		t.prom.LinksFound.Inc()
	}
}

// IncrementProxiesFound counts one newly seen proxy candidate
func (t *Tracker) IncrementProxiesFound() {
	t.proxiesFound.Add(1)
	if t.prom != nil {
		t.prom.ProxiesFound.Inc()
	}
}

// IncrementPagesFetched increments the successful fetch counter
func (t *Tracker) IncrementPagesFetched() {
	t.pagesFetched.Add(1)
	if t.prom != nil {
		t.prom.Fetches.WithLabelValues("success").Inc()
	}
}

// IncrementPagesFailed increments the failed fetch counter
func (t *Tracker) IncrementPagesFailed() {
	t.pagesFailed.Add(1)
	if t.prom != nil {
		t.prom.Fetches.WithLabelValues("failure").Inc()
	}
}

// RecordFlush counts one flush attempt
func (t *Tracker) RecordFlush(err error) {
	t.flushes.Add(1)
	result := "success"
	if err != nil {
		t.flushFailed.Add(1)
		result = "failure"
	}
	if t.prom != nil {
		t.prom.Flushes.WithLabelValues(result).Inc()
	}
}

// RecordFetchTime records a page fetch duration
func (t *Tracker) RecordFetchTime(duration time.Duration) {
	t.totalFetchTimeMs.Add(duration.Milliseconds())
	t.fetchCount.Add(1)
	if t.prom != nil {
		t.prom.FetchDuration.Observe(duration.Seconds())
	}
}

// StartRound resets the round percentage
func (t *Tracker) StartRound(round int) {
	t.lastPercent.Store(0)

	t.mu.Lock()
	t.rounds = round
	t.mu.Unlock()

	if t.prom != nil {
		t.prom.Round.Set(float64(round))
	}
}

// ReportProgress computes the integer percentage of completed out of total
// and returns it with ok=true only if it is strictly greater than every
// value reported before in this round. Concurrent callers race on a
// compare-and-swap, so each percentage is reported at most once.
func (t *Tracker) ReportProgress(completed, total int) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	pct := int32(completed * 100 / total)
	for {
		prev := t.lastPercent.Load()
		if pct <= prev {
			return int(pct), false
		}
		if t.lastPercent.CompareAndSwap(prev, pct) {
			return int(pct), true
		}
	}
}

// LinksFound returns the number of unique links found this run
func (t *Tracker) LinksFound() int64 {
	return t.linksFound.Load()
}

// ProxiesFound returns the number of unique proxies found this run
func (t *Tracker) ProxiesFound() int64 {
	return t.proxiesFound.Load()
}

// Percent returns the last reported round percentage
func (t *Tracker) Percent() int {
	return int(t.lastPercent.Load())
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	snapshot := storage.Metrics{
		StartTime: t.startTime,
		Rounds:    t.rounds,
	}
	t.mu.Unlock()

	snapshot.LinksFound = t.linksFound.Load()
	snapshot.ProxiesFound = t.proxiesFound.Load()
	snapshot.PagesFetched = t.pagesFetched.Load()
	snapshot.PagesFailed = t.pagesFailed.Load()
	snapshot.Flushes = t.flushes.Load()
	snapshot.FlushFailures = t.flushFailed.Load()
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs.Load()

	// Calculate average fetch time
	if n := t.fetchCount.Load(); n > 0 {
		snapshot.AvgFetchTimeMs = snapshot.TotalFetchTimeMs / n
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	data := t.GetSnapshot()
	data.EndTime = time.Now()
	data.TerminationReason = reason

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats the counters for periodic console output
func (t *Tracker) LogProgress() string {
	return fmt.Sprintf("Links: %d | Proxies: %d | Pages: %d fetched, %d failed | Flushes: %d (%d failed)",
		t.linksFound.Load(),
		t.proxiesFound.Load(),
		t.pagesFetched.Load(),
		t.pagesFailed.Load(),
		t.flushes.Load(),
		t.flushFailed.Load(),
	)
}

package crawler

import (
	"sync"
)

// RateController keeps a politeness delay per root domain. The delay starts
// at minDelay, doubles on each failure up to maxDelay and drops back to
// minDelay on success.
type RateController struct {
	minDelay int
	maxDelay int
	mu       sync.Mutex
	// Map: root domain -> current delay in ms
	delays map[string]int
}

// NewRateController creates a controller with delays in milliseconds
func NewRateController(minDelayMs, maxDelayMs int) *RateController {
	if maxDelayMs < minDelayMs {
		maxDelayMs = minDelayMs
	}
	return &RateController{
		minDelay: minDelayMs,
		maxDelay: maxDelayMs,
		delays:   make(map[string]int),
	}
}

// Delay returns the current delay for host, initialising it on first use
func (rc *RateController) Delay(host string) int {
	root := ExtractRootDomain(host)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	d, exists := rc.delays[root]
	if !exists {
		d = rc.minDelay
		rc.delays[root] = d
	}
	return d
}

// OnSuccess resets the delay for host to the minimum
func (rc *RateController) OnSuccess(host string) {
	root := ExtractRootDomain(host)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.delays[root] = rc.minDelay
}

// OnFailure doubles the delay for host, capped at the maximum
func (rc *RateController) OnFailure(host string) {
	root := ExtractRootDomain(host)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	d, exists := rc.delays[root]
	if !exists {
		d = rc.minDelay
	}

	d *= 2
	if d > rc.maxDelay {
		d = rc.maxDelay
	}
	rc.delays[root] = d
}

// Snapshot returns a copy of every tracked delay
func (rc *RateController) Snapshot() map[string]int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := make(map[string]int, len(rc.delays))
	for k, v := range rc.delays {
		out[k] = v
	}
	return out
}

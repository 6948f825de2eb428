package crawler

import (
	"cmp"
	"slices"
	"sync"
)

// Frontier collects the URLs eligible for the next round, dropping
// duplicates on push
type Frontier struct {
	mu    sync.Mutex
	items []string
	seen  map[string]bool
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		items: make([]string, 0),
		seen:  make(map[string]bool),
	}
}

// Push adds a URL if it is not already queued.
// Returns true if added, false if duplicate.
func (f *Frontier) Push(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen[u] {
		return false
	}
	f.seen[u] = true
	f.items = append(f.items, u)
	return true
}

// Size returns the current number of queued URLs
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Drain empties the frontier and returns its URLs least-visited first.
// visits reports the current count of a root domain; unknown domains count
// as zero. Ties are broken lexically so the order is deterministic.
func (f *Frontier) Drain(visits func(root string) int) []string {
	f.mu.Lock()
	items := f.items
	f.items = make([]string, 0)
	f.seen = make(map[string]bool)
	f.mu.Unlock()

	counts := make(map[string]int, len(items))
	for _, u := range items {
		if root := RootOf(u); root != "" {
			counts[u] = visits(root)
		}
	}

	slices.SortFunc(items, func(a, b string) int {
		if c := cmp.Compare(counts[a], counts[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return items
}

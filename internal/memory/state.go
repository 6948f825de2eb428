package memory

import (
	"strings"
	"sync"

	"github.com/alvmarrod/proxy-weaver/internal/storage"
)

// CrawlState holds every table the crawl mutates. Each table has its own
// lock and no operation spans two tables, so a fetch may be partially
// applied at any instant; all tables only grow, which keeps that harmless.
type CrawlState struct {
	domains   map[string]int // root domain -> visit count
	domainsMu sync.RWMutex

	proxies   map[string]storage.ProxyCandidate // ip:port -> candidate
	proxiesMu sync.RWMutex

	links   map[string]struct{}
	linksMu sync.Mutex

	processed   map[string]struct{}
	processedMu sync.Mutex
}

// NewCrawlState creates an empty state
func NewCrawlState() *CrawlState {
	return &CrawlState{
		domains:   make(map[string]int),
		proxies:   make(map[string]storage.ProxyCandidate),
		links:     make(map[string]struct{}),
		processed: make(map[string]struct{}),
	}
}

func domainKey(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// RegisterDomain adds domain with a zero count if it is not known yet.
// Returns true if the domain was added.
func (s *CrawlState) RegisterDomain(domain string) bool {
	key := domainKey(domain)
	if key == "" {
		return false
	}

	s.domainsMu.Lock()
	defer s.domainsMu.Unlock()

	if _, exists := s.domains[key]; exists {
		return false
	}
	s.domains[key] = 0
	return true
}

// SetDomain stores an explicit count, used when loading persisted rows
func (s *CrawlState) SetDomain(domain string, count int) {
	key := domainKey(domain)
	if key == "" {
		return
	}

	s.domainsMu.Lock()
	defer s.domainsMu.Unlock()
	s.domains[key] = count
}

// IncrementVisit bumps the visit count of domain, creating it at 1 if absent,
// and returns the new count
func (s *CrawlState) IncrementVisit(domain string) int {
	key := domainKey(domain)

	s.domainsMu.Lock()
	defer s.domainsMu.Unlock()
	s.domains[key]++
	return s.domains[key]
}

// VisitCount returns the count for domain and whether it is known
func (s *CrawlState) VisitCount(domain string) (int, bool) {
	s.domainsMu.RLock()
	defer s.domainsMu.RUnlock()
	n, ok := s.domains[domainKey(domain)]
	return n, ok
}

// Domains returns every known domain key
func (s *CrawlState) Domains() []string {
	s.domainsMu.RLock()
	defer s.domainsMu.RUnlock()

	keys := make([]string, 0, len(s.domains))
	for k := range s.domains {
		keys = append(keys, k)
	}
	return keys
}

// DomainSnapshot copies the domain table
func (s *CrawlState) DomainSnapshot() []storage.DomainRecord {
	s.domainsMu.RLock()
	defer s.domainsMu.RUnlock()

	records := make([]storage.DomainRecord, 0, len(s.domains))
	for k, v := range s.domains {
		records = append(records, storage.DomainRecord{Domain: k, CallCount: v})
	}
	return records
}

// AddProxy records address as a PENDING candidate unless it already exists.
// Returns true only for the first writer.
func (s *CrawlState) AddProxy(address string) bool {
	s.proxiesMu.Lock()
	defer s.proxiesMu.Unlock()

	if _, exists := s.proxies[address]; exists {
		return false
	}
	s.proxies[address] = storage.ProxyCandidate{Address: address, Status: storage.StatusPending}
	return true
}

// PutProxy stores or overwrites a candidate, used when loading persisted rows
// and when a probe reports a new status
func (s *CrawlState) PutProxy(p storage.ProxyCandidate) {
	if p.Address == "" {
		return
	}
	if p.Status == "" {
		p.Status = storage.StatusPending
	}

	s.proxiesMu.Lock()
	defer s.proxiesMu.Unlock()
	s.proxies[p.Address] = p
}

// Proxy returns the candidate stored under address
func (s *CrawlState) Proxy(address string) (storage.ProxyCandidate, bool) {
	s.proxiesMu.RLock()
	defer s.proxiesMu.RUnlock()
	p, ok := s.proxies[address]
	return p, ok
}

// ProxySnapshot copies the proxy table
func (s *CrawlState) ProxySnapshot() []storage.ProxyCandidate {
	s.proxiesMu.RLock()
	defer s.proxiesMu.RUnlock()

	proxies := make([]storage.ProxyCandidate, 0, len(s.proxies))
	for _, p := range s.proxies {
		proxies = append(proxies, p)
	}
	return proxies
}

// AddLink records link in the seen set, ignoring case.
// Returns true if it had not been seen before.
func (s *CrawlState) AddLink(link string) bool {
	key := strings.ToLower(link)

	s.linksMu.Lock()
	defer s.linksMu.Unlock()

	if _, exists := s.links[key]; exists {
		return false
	}
	s.links[key] = struct{}{}
	return true
}

// MarkProcessed inserts domain into the processed set and reports whether
// it was newly inserted. Only one caller per run gets true for a domain.
func (s *CrawlState) MarkProcessed(domain string) bool {
	key := domainKey(domain)

	s.processedMu.Lock()
	defer s.processedMu.Unlock()

	if _, exists := s.processed[key]; exists {
		return false
	}
	s.processed[key] = struct{}{}
	return true
}

// Unprocessed returns every known domain not yet fetched this run
func (s *CrawlState) Unprocessed() []string {
	domains := s.Domains()

	s.processedMu.Lock()
	defer s.processedMu.Unlock()

	pending := domains[:0]
	for _, d := range domains {
		if _, done := s.processed[d]; !done {
			pending = append(pending, d)
		}
	}
	return pending
}

// ResetRun clears the run-scoped sets (seen links and processed domains)
// while keeping the persisted tables
func (s *CrawlState) ResetRun() {
	s.linksMu.Lock()
	s.links = make(map[string]struct{})
	s.linksMu.Unlock()

	s.processedMu.Lock()
	s.processed = make(map[string]struct{})
	s.processedMu.Unlock()
}

// GetStats returns the size of the two persisted tables
func (s *CrawlState) GetStats() (domainCount, proxyCount int) {
	s.domainsMu.RLock()
	domainCount = len(s.domains)
	s.domainsMu.RUnlock()

	s.proxiesMu.RLock()
	proxyCount = len(s.proxies)
	s.proxiesMu.RUnlock()

	return domainCount, proxyCount
}

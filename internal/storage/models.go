package storage

import "time"

// Proxy candidate statuses. Extraction writes PENDING; the checker
// overwrites it with OK or FAILED.
const (
	StatusPending = "PENDING"
	StatusOK      = "OK"
	StatusFailed  = "FAILED"
)

// Table headers, written as the first row of each tabular resource
var (
	DomainHeader = []string{"domain", "call_count"}
	ProxyHeader  = []string{"proxy", "status", "latency_ms"}
)

// DomainRecord is one row of the domain table: a root domain and how many
// times it has been fetched
type DomainRecord struct {
	Domain    string
	CallCount int
}

// ProxyCandidate is one row of the proxy table
type ProxyCandidate struct {
	Address string
	Status  string
	Latency string // milliseconds, empty until a probe succeeds
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Rounds            int       `json:"rounds"`
	LinksFound        int64     `json:"links_found"`
	ProxiesFound      int64     `json:"proxies_found"`
	PagesFetched      int64     `json:"pages_fetched"`
	PagesFailed       int64     `json:"pages_failed"`
	Flushes           int64     `json:"flushes"`
	FlushFailures     int64     `json:"flush_failures"`
	TotalFetchTimeMs  int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64     `json:"avg_fetch_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}

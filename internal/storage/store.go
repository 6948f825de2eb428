package storage

import "fmt"

// Store persists the two crawl datasets. Each dataset is saved as a whole;
// implementations must leave the previous contents intact when a save fails.
type Store interface {
	LoadDomains() ([]DomainRecord, error)
	LoadProxies() ([]ProxyCandidate, error)
	SaveDomains(records []DomainRecord) error
	SaveProxies(proxies []ProxyCandidate) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Open returns the store for the named backend
func Open(backend, domainPath, proxyPath, dbPath string) (Store, error) {
	switch backend {
	case BackendCSV, "":
		return NewCSVStore(domainPath, proxyPath), nil
	case BackendSQLite:
		return NewStorage(dbPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

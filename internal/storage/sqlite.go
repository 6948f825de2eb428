package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Storage keeps both datasets in a SQLite database
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS domains (
		domain TEXT PRIMARY KEY COLLATE NOCASE,
		call_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS proxies (
		proxy TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'PENDING',
		latency_ms TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// LoadDomains returns every domain row ordered by domain
func (s *Storage) LoadDomains() ([]DomainRecord, error) {
	rows, err := s.db.Query(`SELECT domain, call_count FROM domains ORDER BY domain ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load domains: %w", err)
	}
	defer rows.Close()

	var records []DomainRecord
	for rows.Next() {
		var r DomainRecord
		if err := rows.Scan(&r.Domain, &r.CallCount); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domains: %w", err)
	}

	return records, nil
}

// LoadProxies returns every proxy row ordered by address
func (s *Storage) LoadProxies() ([]ProxyCandidate, error) {
	rows, err := s.db.Query(`SELECT proxy, status, latency_ms FROM proxies ORDER BY proxy ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxies: %w", err)
	}
	defer rows.Close()

	var proxies []ProxyCandidate
	for rows.Next() {
		var p ProxyCandidate
		if err := rows.Scan(&p.Address, &p.Status, &p.Latency); err != nil {
			return nil, fmt.Errorf("failed to scan proxy: %w", err)
		}
		proxies = append(proxies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proxies: %w", err)
	}

	return proxies, nil
}

// SaveDomains upserts every record in one transaction. Rows are never
// deleted, matching the in-memory table.
func (s *Storage) SaveDomains(records []DomainRecord) error {
	return s.inTx(`
		INSERT INTO domains (domain, call_count)
		VALUES (?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			call_count = EXCLUDED.call_count
	`, len(records), func(stmt *sql.Stmt, i int) error {
		_, err := stmt.Exec(records[i].Domain, records[i].CallCount)
		return err
	})
}

// SaveProxies upserts every candidate in one transaction
func (s *Storage) SaveProxies(proxies []ProxyCandidate) error {
	return s.inTx(`
		INSERT INTO proxies (proxy, status, latency_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(proxy) DO UPDATE SET
			status = EXCLUDED.status,
			latency_ms = EXCLUDED.latency_ms
	`, len(proxies), func(stmt *sql.Stmt, i int) error {
		_, err := stmt.Exec(proxies[i].Address, proxies[i].Status, proxies[i].Latency)
		return err
	})
}

// inTx prepares query once and executes it n times inside a transaction
func (s *Storage) inTx(query string, n int, exec func(stmt *sql.Stmt, i int) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			return fmt.Errorf("failed to upsert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

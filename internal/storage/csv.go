package storage

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// CSVStore keeps each dataset in its own comma-separated file
type CSVStore struct {
	domainPath string
	proxyPath  string
}

// NewCSVStore creates a store over the two table files. Files are created on
// the first save.
func NewCSVStore(domainPath, proxyPath string) *CSVStore {
	return &CSVStore{domainPath: domainPath, proxyPath: proxyPath}
}

// LoadDomains reads the domain table. A missing file yields no records; rows
// that are not exactly `domain,count` with an integer count are skipped.
func (s *CSVStore) LoadDomains() ([]DomainRecord, error) {
	var records []DomainRecord
	err := readRows(s.domainPath, func(row []string) {
		if len(row) != 2 || strings.TrimSpace(row[0]) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return
		}
		records = append(records, DomainRecord{Domain: strings.TrimSpace(row[0]), CallCount: n})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load domains: %w", err)
	}
	return records, nil
}

// LoadProxies reads the proxy table. Rows need at least an address and a
// status; the latency column is optional.
func (s *CSVStore) LoadProxies() ([]ProxyCandidate, error) {
	var proxies []ProxyCandidate
	err := readRows(s.proxyPath, func(row []string) {
		if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
			return
		}
		p := ProxyCandidate{Address: strings.TrimSpace(row[0]), Status: strings.TrimSpace(row[1])}
		if len(row) > 2 {
			p.Latency = strings.TrimSpace(row[2])
		}
		proxies = append(proxies, p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load proxies: %w", err)
	}
	return proxies, nil
}

// SaveDomains rewrites the domain table sorted by domain
func (s *CSVStore) SaveDomains(records []DomainRecord) error {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b DomainRecord) int { return cmp.Compare(a.Domain, b.Domain) })

	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, []string{r.Domain, strconv.Itoa(r.CallCount)})
	}
	if err := writeTable(s.domainPath, DomainHeader, rows); err != nil {
		return fmt.Errorf("failed to save domains: %w", err)
	}
	return nil
}

// SaveProxies rewrites the proxy table sorted by address. The latency column
// is only written when known.
func (s *CSVStore) SaveProxies(proxies []ProxyCandidate) error {
	sorted := slices.Clone(proxies)
	slices.SortFunc(sorted, func(a, b ProxyCandidate) int { return cmp.Compare(a.Address, b.Address) })

	rows := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		if p.Latency == "" {
			rows = append(rows, []string{p.Address, p.Status})
			continue
		}
		rows = append(rows, []string{p.Address, p.Status, p.Latency})
	}
	if err := writeTable(s.proxyPath, ProxyHeader, rows); err != nil {
		return fmt.Errorf("failed to save proxies: %w", err)
	}
	return nil
}

// Close is a no-op; files are opened per operation
func (s *CSVStore) Close() error {
	return nil
}

// readRows calls fn for every data row after the header. Rows the CSV reader
// rejects are skipped.
func readRows(path string, fn func(row []string)) error {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			header = false
			continue
		}
		if err != nil {
			return err
		}
		if header {
			header = false
			continue
		}
		fn(row)
	}
}

// writeTable writes header and rows to a temporary file next to path and
// renames it into place, so readers never observe a partial table
func writeTable(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

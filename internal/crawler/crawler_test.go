package crawler

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alvmarrod/proxy-weaver/internal/config"
	"github.com/alvmarrod/proxy-weaver/internal/memory"
	"github.com/alvmarrod/proxy-weaver/internal/metrics"
	"github.com/alvmarrod/proxy-weaver/internal/storage"
)

var errUnreachable = errors.New("unreachable")

// fakeFetcher serves canned bodies keyed by URL and records fetch order
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	failed map[string]bool
	calls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failed[url] {
		return nil, errUnreachable
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, errUnreachable
	}
	return []byte(body), nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// lineSink collects progress lines
type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) Log(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lines)
}

type harness struct {
	cfg     *config.Config
	state   *memory.CrawlState
	tracker *metrics.Tracker
	sink    *lineSink
	crawler *Crawler
}

func newHarness(t *testing.T, cfg *config.Config, fetcher Fetcher) *harness {
	t.Helper()

	store := storage.NewCSVStore(cfg.DomainCSV, cfg.ProxyCSV)
	state := memory.NewCrawlState()
	tracker := metrics.NewTracker(metrics.NewCollectors())
	sink := &lineSink{}

	c := NewCrawler(cfg, state, storage.NewPersister(store, state), tracker,
		WithFetcher(fetcher), WithSink(sink))

	return &harness{cfg: cfg, state: state, tracker: tracker, sink: sink, crawler: c}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DomainCSV = filepath.Join(dir, "domains.csv")
	cfg.ProxyCSV = filepath.Join(dir, "proxies.csv")
	cfg.Rounds = 1
	cfg.MaxParallel = 1
	cfg.MinDelayMs = 0
	cfg.MaxDelayMs = 0
	cfg.SeedURL = "https://seed.test"
	return cfg
}

func readTable(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func writeTable(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

const seedBody = `
<tr><td>1.2.3.4:8080</td></tr>
<tr><td>5.6.7.8:3128</td></tr>
<a href="https://www.example.com/list">list</a>
<a href="http://blog.example.org/post">post</a>
<a href="https://seed.test/about">about</a>
`

func TestRunSingleRoundFromSeed(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	fetcher := &fakeFetcher{pages: map[string]string{"https://seed.test": seedBody}}
	h := newHarness(t, cfg, fetcher)

	if err := h.crawler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.tracker.LinksFound(); got != 3 {
		t.Errorf("LinksFound = %d, want 3", got)
	}
	if got := h.tracker.ProxiesFound(); got != 2 {
		t.Errorf("ProxiesFound = %d, want 2", got)
	}

	proxies := readTable(t, cfg.ProxyCSV)
	wantProxies := [][]string{
		{"proxy", "status", "latency_ms"},
		{"1.2.3.4:8080", "PENDING"},
		{"5.6.7.8:3128", "PENDING"},
	}
	if !slices.EqualFunc(proxies, wantProxies, slices.Equal[[]string]) {
		t.Errorf("proxy table = %v, want %v", proxies, wantProxies)
	}

	domains := readTable(t, cfg.DomainCSV)
	wantDomains := [][]string{
		{"domain", "call_count"},
		{"example.com", "0"},
		{"example.org", "0"},
		{"seed.test", "1"},
	}
	if !slices.EqualFunc(domains, wantDomains, slices.Equal[[]string]) {
		t.Errorf("domain table = %v, want %v", domains, wantDomains)
	}

	if calls := fetcher.Calls(); !slices.Equal(calls, []string{"https://seed.test"}) {
		t.Errorf("fetches = %v", calls)
	}
}

func TestRunProgressLines(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	fetcher := &fakeFetcher{pages: map[string]string{"https://seed.test": seedBody}}
	h := newHarness(t, cfg, fetcher)

	if err := h.crawler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	lines := h.sink.Lines()
	for _, want := range []string{
		"Round 1/1",
		"100% - Links:3 - Proxies:2",
		"Saved 3 domains, 2 proxies",
	} {
		if !slices.Contains(lines, want) {
			t.Errorf("missing line %q in %v", want, lines)
		}
	}
}

func TestRunDiscoveredDomainsFeedNextRound(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Rounds = 2
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://seed.test": `see https://a.test/page`,
		"https://a.test":    `9.9.9.9:1080`,
	}}
	h := newHarness(t, cfg, fetcher)

	if err := h.crawler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"https://seed.test", "https://a.test"}
	if calls := fetcher.Calls(); !slices.Equal(calls, want) {
		t.Errorf("fetches = %v, want %v", calls, want)
	}
	if n, _ := h.state.VisitCount("a.test"); n != 1 {
		t.Errorf("a.test visits = %d, want 1", n)
	}
	if _, ok := h.state.Proxy("9.9.9.9:1080"); !ok {
		t.Error("proxy from second round missing")
	}
}

func TestRunFetchesEachDomainOncePerRun(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Rounds = 3
	writeTable(t, cfg.DomainCSV, "domain,call_count\nloop.test,0\n")
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://loop.test": `https://loop.test/again https://www.loop.test/x`,
	}}
	h := newHarness(t, cfg, fetcher)

	if err := h.crawler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if calls := fetcher.Calls(); len(calls) != 1 {
		t.Errorf("fetches = %v, want exactly one", calls)
	}
	if n, _ := h.state.VisitCount("loop.test"); n != 1 {
		t.Errorf("visits = %d, want 1", n)
	}
}

func TestRunDispatchesLeastVisitedFirst(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	writeTable(t, cfg.DomainCSV, "domain,call_count\na.test,5\nc.test,0\nb.test,0\n")
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.test": "", "https://b.test": "", "https://c.test": "",
	}}
	h := newHarness(t, cfg, fetcher)

	if err := h.crawler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"https://b.test", "https://c.test", "https://a.test"}
	if calls := fetcher.Calls(); !slices.Equal(calls, want) {
		t.Errorf("dispatch order = %v, want %v", calls, want)
	}
}

func TestRunFailureStillCountsVisit(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MinDelayMs = 1
	cfg.MaxDelayMs = 8
	writeTable(t, cfg.DomainCSV, "domain,call_count\nbad.test,3\n")
	fetcher := &fakeFetcher{failed: map[string]bool{"https://bad.test": true}}
	h := newHarness(t, cfg, fetcher)

	if err := h.crawler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if n, _ := h.state.VisitCount("bad.test"); n != 4 {
		t.Errorf("visits = %d, want 4", n)
	}
	if d := h.crawler.rate.Snapshot()["bad.test"]; d != 2 {
		t.Errorf("delay after failure = %d, want 2", d)
	}
	if snap := h.tracker.GetSnapshot(); snap.PagesFailed != 1 || snap.PagesFetched != 0 {
		t.Errorf("pages fetched/failed = %d/%d, want 0/1", snap.PagesFetched, snap.PagesFailed)
	}

	domains := readTable(t, cfg.DomainCSV)
	if len(domains) != 2 || domains[1][0] != "bad.test" || domains[1][1] != "4" {
		t.Errorf("domain table = %v", domains)
	}
}

func TestRunLoadsPersistedProxies(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	writeTable(t, cfg.ProxyCSV, "proxy,status,latency_ms\n1.2.3.4:8080,OK,120\n")
	fetcher := &fakeFetcher{pages: map[string]string{"https://seed.test": seedBody}}
	h := newHarness(t, cfg, fetcher)

	if err := h.crawler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.tracker.ProxiesFound(); got != 1 {
		t.Errorf("ProxiesFound = %d, want 1 (one already known)", got)
	}

	proxies := readTable(t, cfg.ProxyCSV)
	if len(proxies) != 3 || !slices.Equal(proxies[1], []string{"1.2.3.4:8080", "OK", "120"}) {
		t.Errorf("proxy table = %v", proxies)
	}
}

func TestRunCancelledStillFlushes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	fetcher := &fakeFetcher{pages: map[string]string{"https://seed.test": seedBody}}
	h := newHarness(t, cfg, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.crawler.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if calls := fetcher.Calls(); len(calls) != 0 {
		t.Errorf("fetches after cancel = %v", calls)
	}

	domains := readTable(t, cfg.DomainCSV)
	if len(domains) != 2 || domains[1][0] != "seed.test" || domains[1][1] != "0" {
		t.Errorf("domain table = %v", domains)
	}
	proxies := readTable(t, cfg.ProxyCSV)
	if len(proxies) != 1 || strings.Join(proxies[0], ",") != "proxy,status,latency_ms" {
		t.Errorf("proxy table = %v, want header only", proxies)
	}
}

func TestRunConcurrentRound(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxParallel = 8

	var table strings.Builder
	table.WriteString("domain,call_count\n")
	pages := make(map[string]string)
	for _, d := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		table.WriteString(d + ".test,0\n")
		pages["https://"+d+".test"] = "https://shared.test/x 1.1.1.1:80"
	}
	writeTable(t, cfg.DomainCSV, table.String())

	fetcher := &fakeFetcher{pages: pages}
	h := newHarness(t, cfg, fetcher)

	if err := h.crawler.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := len(fetcher.Calls()); got != 10 {
		t.Errorf("fetches = %d, want 10", got)
	}
	if got := h.tracker.LinksFound(); got != 1 {
		t.Errorf("LinksFound = %d, want 1", got)
	}
	if got := h.tracker.ProxiesFound(); got != 1 {
		t.Errorf("ProxiesFound = %d, want 1", got)
	}
	if got := h.tracker.Percent(); got != 100 {
		t.Errorf("Percent = %d, want 100", got)
	}
}

func TestRunFlushFailureIsReportedAndRunContinues(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.ProxyCSV = filepath.Join(t.TempDir(), "missing", "proxies.csv")

	var mu sync.Mutex
	var lines []string
	sink := SinkFunc(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	})

	state := memory.NewCrawlState()
	store := storage.NewCSVStore(cfg.DomainCSV, cfg.ProxyCSV)
	tracker := metrics.NewTracker(nil)
	fetcher := &fakeFetcher{pages: map[string]string{"https://seed.test": seedBody}}
	c := NewCrawler(cfg, state, storage.NewPersister(store, state), tracker,
		WithFetcher(fetcher), WithSink(sink))

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.ContainsFunc(lines, func(l string) bool { return strings.HasPrefix(l, "Flush failed") }) {
		t.Errorf("no flush failure line in %v", lines)
	}
	if !slices.Contains(lines, "100% - Links:3 - Proxies:2") {
		t.Errorf("round did not complete: %v", lines)
	}
	if snap := tracker.GetSnapshot(); snap.FlushFailures != 1 {
		t.Errorf("FlushFailures = %d, want 1", snap.FlushFailures)
	}

	// The domain dataset has its own file and is still written
	domains := readTable(t, cfg.DomainCSV)
	if len(domains) != 4 {
		t.Errorf("domain table = %v", domains)
	}
}

func TestRunCancelledMidRoundLeavesValidTables(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxParallel = 2
	cfg.MinDelayMs = 5000
	cfg.MaxDelayMs = 5000
	writeTable(t, cfg.DomainCSV, `domain,call_count
a.test,0
b.test,0
c.test,0
d.test,0
`)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.test": "1.1.1.1:80",
		"https://b.test": "2.2.2.2:80",
		"https://c.test": "3.3.3.3:80",
		"https://d.test": "4.4.4.4:80",
	}}
	h := newHarness(t, cfg, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	defer cancel()

	start := time.Now()
	err := h.crawler.Run(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Run() took %v, in-flight delays were not interrupted", elapsed)
	}
	if calls := fetcher.Calls(); len(calls) != 0 {
		t.Errorf("fetches = %v, want none while sleeping", calls)
	}

	domains := readTable(t, cfg.DomainCSV)
	want := [][]string{
		{"domain", "call_count"},
		{"a.test", "1"},
		{"b.test", "1"},
		{"c.test", "0"},
		{"d.test", "0"},
	}
	if !slices.EqualFunc(domains, want, slices.Equal[[]string]) {
		t.Errorf("domain table = %v, want %v", domains, want)
	}

	proxies := readTable(t, cfg.ProxyCSV)
	if len(proxies) != 1 || strings.Join(proxies[0], ",") != "proxy,status,latency_ms" {
		t.Errorf("proxy table = %v, want header only", proxies)
	}
}

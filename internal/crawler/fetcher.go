package crawler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Fetcher performs a single GET and returns the response body. Any
// transport error, timeout or non-success status is an error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherOptions configures the colly-backed fetcher
type FetcherOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

const resultKey = "fetch_result"

type fetchResult struct {
	body   []byte
	status int
}

// CollyFetcher fetches pages through a synchronous colly collector. The
// collector is bound to the run context so cancelling it aborts in-flight
// requests.
type CollyFetcher struct {
	collector *colly.Collector
}

// NewCollyFetcher creates a fetcher whose requests are cancelled with ctx
func NewCollyFetcher(ctx context.Context, opts FetcherOptions) *CollyFetcher {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 10 * 1024 * 1024
	}

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(opts.MaxBodySize),
		colly.StdlibContext(ctx),
	)

	// Pooled connections; the transport decompresses gzip transparently
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        512,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: opts.Timeout,
	})
	c.SetRequestTimeout(opts.Timeout)

	c.OnResponse(func(r *colly.Response) {
		if res, ok := r.Ctx.GetAny(resultKey).(*fetchResult); ok {
			res.body = r.Body
			res.status = r.StatusCode
		}
	})

	return &CollyFetcher{collector: c}
}

// Fetch issues one GET for url
func (f *CollyFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &fetchResult{}
	rctx := colly.NewContext()
	rctx.Put(resultKey, res)

	if err := f.collector.Request(http.MethodGet, url, nil, rctx, http.Header{}); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if res.status == 0 {
		return nil, fmt.Errorf("failed to fetch %s: no response", url)
	}

	return res.body, nil
}

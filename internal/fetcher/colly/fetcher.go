// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

// DefaultTimeout bounds a single probe or download.
const DefaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	ByteCeiling int64
	// Transport overrides the pooled default transport. Tests use it to
	// route requests at an httptest server.
	Transport http.RoundTripper
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Each call runs on a clone of the base collector.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ByteCeiling <= 0 {
		cfg.ByteCeiling = crawler.DefaultByteCeiling
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		// One byte past the ceiling lets Download tell "exactly at the
		// limit" apart from "truncated".
		colly.MaxBodySize(int(cfg.ByteCeiling)+1),
	)
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Probe issues a HEAD request and reports the status code and declared
// Content-Length. A missing or unparsable length is reported as -1.
func (f *Fetcher) Probe(ctx context.Context, url string) (crawler.ProbeResult, error) {
	var (
		result   = crawler.ProbeResult{ContentLength: -1}
		fetchErr error
	)
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.ContentLength = contentLength(r.Headers)
	}, &fetchErr)

	if err := f.runCollector(ctx, func() error { return collector.Head(url) }, &fetchErr); err != nil {
		return crawler.ProbeResult{}, err
	}
	return result, nil
}

// Download fetches the body with GET. Bodies larger than the configured
// ceiling fail with crawler.ErrBodyTooLarge and non-2xx responses fail
// with a status error.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	}, &fetchErr)

	if err := f.runCollector(ctx, func() error { return collector.Visit(url) }, &fetchErr); err != nil {
		return nil, err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("download %s: unexpected status %d", url, status)
	}
	if int64(len(body)) > f.cfg.ByteCeiling {
		return nil, fmt.Errorf("download %s: %w", url, crawler.ErrBodyTooLarge)
	}
	return body, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	onResponse func(*colly.Response),
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		onResponse(r)
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, visit func() error, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func contentLength(headers *http.Header) int64 {
	if headers == nil {
		return -1
	}
	raw := headers.Get("Content-Length")
	if raw == "" {
		return -1
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}

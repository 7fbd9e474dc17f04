// Package ratelimit caps the overall request rate of a fetcher with a token
// bucket. Every probe and every download spends one token.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

// Config holds rate limiter configuration. A non-positive RPS disables the
// limit.
type Config struct {
	RPS   float64
	Burst int
}

// Fetcher wraps a crawler.Fetcher and waits for a token before each request.
type Fetcher struct {
	next    crawler.Fetcher
	limiter *rate.Limiter
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// Wrap returns next unchanged when cfg has no limit.
func Wrap(next crawler.Fetcher, cfg Config) crawler.Fetcher {
	if cfg.RPS <= 0 {
		return next
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Fetcher{next: next, limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst)}
}

// Probe waits for a token, then probes.
func (f *Fetcher) Probe(ctx context.Context, url string) (crawler.ProbeResult, error) {
	if err := f.wait(ctx); err != nil {
		return crawler.ProbeResult{}, err
	}
	return f.next.Probe(ctx, url)
}

// Download waits for a token, then downloads.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.next.Download(ctx, url)
}

func (f *Fetcher) wait(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot fit the next token; the
		// caller still sees ctx's own error once it expires.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rate limit wait: %w", ctxErr)
		}
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Interval is the steady-state gap between requests for cfg, or zero when
// unlimited.
func (c Config) Interval() time.Duration {
	if c.RPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.RPS)
}

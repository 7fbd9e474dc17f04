// Package dns resolves item hosts to network addresses using the platform resolver.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

const defaultTimeout = 5 * time.Second

// Config controls lookups.
type Config struct {
	Timeout time.Duration
}

type lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Resolver implements crawler.Resolver on top of net.Resolver.
type Resolver struct {
	lookup  lookuper
	timeout time.Duration
}

// New builds a Resolver backed by net.DefaultResolver.
func New(cfg Config) *Resolver {
	return newWithLookuper(net.DefaultResolver, cfg)
}

func newWithLookuper(l lookuper, cfg Config) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Resolver{lookup: l, timeout: timeout}
}

// Resolve returns every address for host. A not-found answer wraps
// crawler.ErrHostUnresolved; any other failure is returned as-is.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.lookup.LookupNetIP(lookupCtx, "ip", host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, fmt.Errorf("resolve %q: %w", host, crawler.ErrHostUnresolved)
		}
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	return addrs, nil
}

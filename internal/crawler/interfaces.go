package crawler

import (
	"context"
	"io"
	"net/netip"
	"time"
)

// Resolver maps a host to its network addresses. A host that does not exist
// must be reported with an error wrapping ErrHostUnresolved.
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, error)
}

// Fetcher performs the header-only probe and the bounded body download.
type Fetcher interface {
	Probe(ctx context.Context, url string) (ProbeResult, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RunStore persists the aggregate result of a finished run.
type RunStore interface {
	StoreRun(ctx context.Context, result Result) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used as archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseItem parses one input line as an absolute URL. Lines without a scheme
// or host (including blank lines) are malformed.
func ParseItem(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute url", ErrMalformedURL, raw)
	}
	return u, nil
}

// Site extracts a lowercase host label for metrics and logs.
// It returns "unknown" if the URL is invalid.
func Site(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

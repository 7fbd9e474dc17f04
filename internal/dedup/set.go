// Package dedup tracks the network addresses seen during one crawl run and
// decides whether an item contributes new work.
package dedup

import (
	"net/netip"
	"sync"
)

// AddressSet is a grow-only set of resolved addresses, safe for concurrent use.
type AddressSet struct {
	mu    sync.Mutex
	addrs map[netip.Addr]struct{}
}

// NewAddressSet creates an empty AddressSet.
func NewAddressSet() *AddressSet {
	return &AddressSet{addrs: make(map[netip.Addr]struct{})}
}

// Add inserts every address and reports whether the set grew. The size
// comparison happens under the same lock as the inserts, so exactly one caller
// observes growth for any given new address.
func (s *AddressSet) Add(addrs ...netip.Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.addrs)
	for _, addr := range addrs {
		if !addr.IsValid() {
			continue
		}
		s.addrs[addr.Unmap().WithZone("")] = struct{}{}
	}
	return len(s.addrs) > before
}

// Len returns the number of distinct addresses seen.
func (s *AddressSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.addrs)
}

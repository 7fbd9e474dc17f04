// Package sha256 provides the digest used to key archived bodies.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

var _ crawler.Hasher = Hasher{}

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() Hasher {
	return Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

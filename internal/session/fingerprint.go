package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint algorithms. The issuer that registers sessions must use the same one.
const (
	AlgorithmSHA256  = "sha256"
	AlgorithmBLAKE2b = "blake2b"
	AlgorithmBLAKE3  = "blake3"
)

// Fingerprinter derives the one-way lookup key of a bearer token.
// The raw token is never stored or logged.
type Fingerprinter struct {
	algorithm string
	sum       func([]byte) [32]byte
}

// NewFingerprinter returns a fingerprinter for algorithm. An empty name selects SHA-256.
func NewFingerprinter(algorithm string) (*Fingerprinter, error) {
	algorithm = strings.ToLower(algorithm)
	switch algorithm {
	case "", AlgorithmSHA256:
		return &Fingerprinter{algorithm: AlgorithmSHA256, sum: sha256.Sum256}, nil
	case AlgorithmBLAKE2b:
		return &Fingerprinter{algorithm: AlgorithmBLAKE2b, sum: blake2b.Sum256}, nil
	case AlgorithmBLAKE3:
		return &Fingerprinter{algorithm: AlgorithmBLAKE3, sum: blake3.Sum256}, nil
	default:
		return nil, fmt.Errorf("unsupported fingerprint algorithm %q", algorithm)
	}
}

// Algorithm returns the configured algorithm name.
func (f *Fingerprinter) Algorithm() string {
	return f.algorithm
}

// Fingerprint returns the lowercase hex digest of token.
func (f *Fingerprinter) Fingerprint(token string) string {
	sum := f.sum([]byte(token))
	return hex.EncodeToString(sum[:])
}

// short returns a log-safe prefix of a fingerprint.
func short(fingerprint string) string {
	if len(fingerprint) <= 12 {
		return fingerprint
	}
	return fingerprint[:12]
}

package session

import (
	"context"
	"sync"
	"time"
)

// Store persists session records keyed by token fingerprint.
type Store interface {
	// Lookup returns the record for fingerprint or ErrRecordNotFound.
	Lookup(ctx context.Context, fingerprint string) (*Record, error)

	// Create persists a new record.
	Create(ctx context.Context, record *Record) error

	// Revoke sets the revocation timestamp. An already revoked record keeps
	// its original timestamp. Unknown fingerprints yield ErrRecordNotFound.
	Revoke(ctx context.Context, fingerprint string, at time.Time) error

	// DeleteExpired removes records that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping checks backend reachability.
	Ping(ctx context.Context) error

	Close() error
}

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Lookup(_ context.Context, fingerprint string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fingerprint]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.Fingerprint]; ok {
		return ErrDuplicateRecord
	}
	s.records[record.Fingerprint] = record.clone()
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, fingerprint string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fingerprint]
	if !ok {
		return ErrRecordNotFound
	}
	if rec.RevokedAt == nil {
		rec.RevokedAt = &at
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for fp, rec := range s.records {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.records, fp)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)

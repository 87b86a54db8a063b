package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldSubject   = "subject"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldRevokedAt = "revoked_at"
)

// Creates the hash only if absent and expires it with the session.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'subject', ARGV[1], 'created_at', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
return 1
`)

// Sets revoked_at once; returns -1 for a missing key.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HSETNX', KEYS[1], 'revoked_at', ARGV[1])
`)

// RedisStore keeps sessions as Redis hashes that expire with the session.
// Expired records are removed by Redis itself.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// OpenRedis creates a client from cfg.
func OpenRedis(cfg *RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	return NewRedisStore(redis.NewClient(opts), cfg.KeyPrefix), nil
}

func (s *RedisStore) key(fingerprint string) string {
	return s.keyPrefix + fingerprint
}

func (s *RedisStore) Lookup(ctx context.Context, fingerprint string) (*Record, error) {
	values, err := s.client.HGetAll(ctx, s.key(fingerprint)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrRecordNotFound
	}

	rec := &Record{Fingerprint: fingerprint, Subject: values[fieldSubject]}
	if rec.CreatedAt, err = parseUnixMilli(values[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", fieldCreatedAt, err)
	}
	if rec.ExpiresAt, err = parseUnixMilli(values[fieldExpiresAt]); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", fieldExpiresAt, err)
	}
	if raw, ok := values[fieldRevokedAt]; ok {
		at, err := parseUnixMilli(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", fieldRevokedAt, err)
		}
		rec.RevokedAt = &at
	}
	return rec, nil
}

func (s *RedisStore) Create(ctx context.Context, record *Record) error {
	created, err := createScript.Run(ctx, s.client, []string{s.key(record.Fingerprint)},
		record.Subject,
		record.CreatedAt.UnixMilli(),
		record.ExpiresAt.UnixMilli(),
		record.ExpiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if created == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, fingerprint string, at time.Time) error {
	res, err := revokeScript.Run(ctx, s.client, []string{s.key(fingerprint)}, at.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if res < 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeleteExpired is a no-op: keys carry their own expiry.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

func parseUnixMilli(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

var _ Store = (*RedisStore)(nil)

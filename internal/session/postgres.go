package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	lookupQuery = `SELECT user_id, created_at, expires_at, revoked_at
FROM user_sessions WHERE token_hash = $1 ORDER BY created_at DESC LIMIT 1`

	createQuery = `INSERT INTO user_sessions (user_id, token_hash, created_at, expires_at)
VALUES ($1, $2, $3, $4)`

	revokeQuery = `UPDATE user_sessions SET revoked_at = COALESCE(revoked_at, $2) WHERE token_hash = $1`

	deleteExpiredQuery = `DELETE FROM user_sessions WHERE expires_at < $1`

	uniqueViolation = "23505"
)

// PostgresStore reads and writes the user_sessions table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a connection pool from cfg. It does not dial.
func OpenPostgres(cfg *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return NewPostgresStore(db), nil
}

func (s *PostgresStore) Lookup(ctx context.Context, fingerprint string) (*Record, error) {
	rec := &Record{Fingerprint: fingerprint}
	var revokedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, lookupQuery, fingerprint).
		Scan(&rec.Subject, &rec.CreatedAt, &rec.ExpiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if revokedAt.Valid {
		at := revokedAt.Time
		rec.RevokedAt = &at
	}
	return rec, nil
}

func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	_, err := s.db.ExecContext(ctx, createQuery,
		record.Subject, record.Fingerprint, record.CreatedAt, record.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, fingerprint string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, revokeQuery, fingerprint, at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)

package session

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return NewPostgresStore(db), mock
}

var sessionColumns = []string{"user_id", "created_at", "expires_at", "revoked_at"}

func TestPostgresStore_Lookup(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	revoked := created.Add(time.Minute)

	tests := []struct {
		name        string
		rows        *sqlmock.Rows
		queryErr    error
		wantErr     error
		wantRevoked bool
	}{
		{
			name: "live session",
			rows: sqlmock.NewRows(sessionColumns).AddRow("user-1", created, created.Add(time.Hour), nil),
		},
		{
			name:        "revoked session",
			rows:        sqlmock.NewRows(sessionColumns).AddRow("user-1", created, created.Add(time.Hour), revoked),
			wantRevoked: true,
		},
		{
			name:    "no rows",
			rows:    sqlmock.NewRows(sessionColumns),
			wantErr: ErrRecordNotFound,
		},
		{
			name:     "connection failure",
			queryErr: errors.New("connection refused"),
			wantErr:  ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			store, mock := newMockPostgres(t)
			exp := mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).WithArgs("fp-1")
			if tt.queryErr != nil {
				exp.WillReturnError(tt.queryErr)
			} else {
				exp.WillReturnRows(tt.rows)
			}

			// Act
			rec, err := store.Lookup(context.Background(), "fp-1")

			// Assert
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "fp-1", rec.Fingerprint)
			assert.Equal(t, "user-1", rec.Subject)
			assert.Equal(t, tt.wantRevoked, rec.RevokedAt != nil)
			if tt.wantRevoked {
				assert.True(t, revoked.Equal(*rec.RevokedAt))
			}
		})
	}
}

func TestPostgresStore_Create(t *testing.T) {
	t.Parallel()

	rec := sampleRecord("fp-new")

	t.Run("inserted", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockPostgres(t)
		mock.ExpectExec(regexp.QuoteMeta(createQuery)).
			WithArgs(rec.Subject, rec.Fingerprint, rec.CreatedAt, rec.ExpiresAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, store.Create(context.Background(), rec))
	})

	t.Run("unique violation", func(t *testing.T) {
		t.Parallel()

		store, mock := newMockPostgres(t)
		mock.ExpectExec(regexp.QuoteMeta(createQuery)).
			WillReturnError(&pq.Error{Code: uniqueViolation})

		assert.ErrorIs(t, store.Create(context.Background(), rec), ErrDuplicateRecord)
	})
}

func TestPostgresStore_Revoke(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "revoked", affected: 1},
		{name: "unknown fingerprint", affected: 0, wantErr: ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, mock := newMockPostgres(t)
			mock.ExpectExec(regexp.QuoteMeta(revokeQuery)).
				WithArgs("fp-1", at).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := store.Revoke(context.Background(), "fp-1", at)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresStore_DeleteExpired(t *testing.T) {
	t.Parallel()

	store, mock := newMockPostgres(t)
	cutoff := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(deleteExpiredQuery)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.DeleteExpired(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPostgresStore_PingAndClose(t *testing.T) {
	t.Parallel()

	store, mock := newMockPostgres(t)
	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	mock.ExpectClose()

	assert.ErrorIs(t, store.Ping(context.Background()), ErrStoreUnavailable)
	assert.NoError(t, store.Close())
}

package session

import "time"

// Record is a persisted session keyed by the token fingerprint.
type Record struct {
	Fingerprint string
	Subject     string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// RevokedBy reports whether the session was revoked at or before now.
func (r *Record) RevokedBy(now time.Time) bool {
	return r.RevokedAt != nil && !r.RevokedAt.After(now)
}

// ExpiredBy reports whether the session is past its expiry at now.
func (r *Record) ExpiredBy(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *Record) clone() *Record {
	c := *r
	if r.RevokedAt != nil {
		at := *r.RevokedAt
		c.RevokedAt = &at
	}
	return &c
}

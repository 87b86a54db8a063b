package authz

import "time"

// Outcome is the final decision.
type Outcome string

// Outcomes.
const (
	Allow Outcome = "Allow"
	Deny  Outcome = "Deny"
)

// Source tells where a decision came from.
type Source string

// Sources.
const (
	SourceCacheHit   Source = "CacheHit"
	SourceCacheMiss  Source = "CacheMiss"
	SourceFailClosed Source = "FailClosed"
)

// Fail-closed reasons.
const (
	ReasonAuthorityTimeout     = "authority_timeout"
	ReasonAuthorityUnavailable = "authority_unavailable"
)

// Result is a resolved authorization.
type Result struct {
	Outcome Outcome
	Source  Source
	Latency time.Duration

	// Reason is set only for fail-closed results.
	Reason string
}

// Allowed reports whether the outcome is Allow.
func (r *Result) Allowed() bool {
	return r.Outcome == Allow
}

func outcomeOf(allowed bool) Outcome {
	if allowed {
		return Allow
	}
	return Deny
}

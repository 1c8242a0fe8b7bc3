package consent

import (
	"time"

	"deltagate/internal/domain"
)

// Status is the outcome of a consent lookup.
type Status string

const (
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusExpired Status = "expired"
)

// Decision is the immutable per-request consent verdict. It is recomputed
// for every request; a cached copy never outlives MaxCacheTTL.
type Decision struct {
	Purpose   domain.PurposeID   `json:"purpose"`
	Subject   domain.SubjectHash `json:"subject"`
	Status    Status             `json:"status"`
	CheckedAt time.Time          `json:"checked_at"`
	ExpiresAt time.Time          `json:"expires_at,omitempty"`
}

// MaxCacheTTL bounds how long a consent decision may be reused. Anything
// longer would let a revocation go unnoticed for more than a day.
const MaxCacheTTL = 24 * time.Hour

// Effective resolves the decision as of now: a Granted decision past its
// expiry is Expired, never Granted. Fail closed on ambiguity.
func (d Decision) Effective(now time.Time) Status {
	if d.Status != StatusGranted {
		return d.Status
	}
	if !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt) {
		return StatusExpired
	}
	return StatusGranted
}

// Record is what the oracle's backing store holds per (purpose, subject).
type Record struct {
	Purpose   domain.PurposeID
	Subject   domain.SubjectHash
	GrantedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// IsActive returns true when the record grants consent at the given instant.
func (r Record) IsActive(now time.Time) bool {
	if r.RevokedAt != nil && !r.RevokedAt.After(now) {
		return false
	}
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}

package consent

import (
	"context"
	"sync"
	"time"

	"deltagate/internal/domain"
)

// Oracle is the abstract lookup service mapping (purpose, subject) to a
// consent decision. The source-of-truth store lives behind this port so a
// real backing service can be substituted without touching gating, routing
// or audit logic.
type Oracle interface {
	Lookup(ctx context.Context, purpose domain.PurposeID, subject domain.SubjectHash) (Decision, error)
}

// MemoryOracle is the in-memory oracle used by tests and the FFI default
// wiring. Grants are purpose-bound so one revocation never affects other
// flows.
type MemoryOracle struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{records: make(map[string]Record)}
}

func key(purpose domain.PurposeID, subject domain.SubjectHash) string {
	return purpose.String() + "|" + subject.String()
}

// Grant records consent for the purpose with the given lifetime.
func (o *MemoryOracle) Grant(purpose domain.PurposeID, subject domain.SubjectHash, ttl time.Duration) {
	now := time.Now()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[key(purpose, subject)] = Record{
		Purpose:   purpose,
		Subject:   subject,
		GrantedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Revoke withdraws consent as of now.
func (o *MemoryOracle) Revoke(purpose domain.PurposeID, subject domain.SubjectHash) {
	now := time.Now()
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.records[key(purpose, subject)]; ok {
		rec.RevokedAt = &now
		o.records[key(purpose, subject)] = rec
	}
}

// Lookup implements Oracle. A missing record is a Denied decision, not an
// error: absence of consent is a normal, expected answer.
func (o *MemoryOracle) Lookup(_ context.Context, purpose domain.PurposeID, subject domain.SubjectHash) (Decision, error) {
	now := time.Now()
	o.mu.RLock()
	rec, ok := o.records[key(purpose, subject)]
	o.mu.RUnlock()

	decision := Decision{
		Purpose:   purpose,
		Subject:   subject,
		CheckedAt: now,
	}
	switch {
	case !ok:
		decision.Status = StatusDenied
	case rec.RevokedAt != nil && !rec.RevokedAt.After(now):
		decision.Status = StatusDenied
	case !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt):
		decision.Status = StatusExpired
	default:
		decision.Status = StatusGranted
		decision.ExpiresAt = rec.ExpiresAt
	}
	return decision, nil
}

// AllowAllOracle grants every lookup. Development wiring only; the grant it
// fabricates expires after an hour so cached copies stay short-lived.
type AllowAllOracle struct{}

func (AllowAllOracle) Lookup(_ context.Context, purpose domain.PurposeID, subject domain.SubjectHash) (Decision, error) {
	now := time.Now()
	return Decision{
		Purpose:   purpose,
		Subject:   subject,
		Status:    StatusGranted,
		CheckedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}, nil
}

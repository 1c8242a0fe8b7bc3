package consent

import (
	"context"
	"log/slog"
	"time"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

// Checker resolves per-request consent. The oracle lookup is the only
// blocking step on the inference hot path before invocation, so it carries
// an enforced timeout and an optional bounded-TTL cache in front.
type Checker struct {
	oracle  Oracle
	cache   *Cache
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker builds a checker. cache may be nil, which degrades to direct
// oracle calls on every request.
func NewChecker(oracle Oracle, cache *Cache, timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{oracle: oracle, cache: cache, timeout: timeout, logger: logger}
}

// Require resolves consent and fails closed: any status other than Granted,
// any lookup error and any timeout all surface as NoConsent. The returned
// decision reflects what was actually checked, for audit evidence.
func (c *Checker) Require(ctx context.Context, purpose domain.PurposeID, subject domain.SubjectHash) (Decision, error) {
	now := time.Now()

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, purpose, subject); ok {
			if effective := cached.Effective(now); effective == StatusGranted {
				return cached, nil
			}
			// A cached denial is authoritative for its short TTL; a cached
			// grant that expired in place is re-checked against the oracle.
			if cached.Status != StatusGranted {
				return cached, status.NoConsent("consent_" + string(cached.Status))
			}
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	decision, err := c.oracle.Lookup(lookupCtx, purpose, subject)
	if err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "consent oracle lookup failed",
				"purpose", purpose.String(),
				"subject", subject.String(),
				"error", err,
			)
		}
		denied := Decision{Purpose: purpose, Subject: subject, Status: StatusDenied, CheckedAt: now}
		return denied, status.Wrap(status.CodeNoConsent, "consent_lookup_failed", err)
	}

	if c.cache != nil {
		c.cache.Put(ctx, decision)
	}

	if effective := decision.Effective(now); effective != StatusGranted {
		return decision, status.NoConsent("consent_" + string(effective))
	}
	return decision, nil
}

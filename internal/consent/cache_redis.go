package consent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"deltagate/internal/domain"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "deltagate_consent_cache_lookups_total",
	Help: "Consent cache lookups by result",
}, []string{"result"}) // result: "hit", "miss", "error"

const (
	cacheKeyPrefix = "consent:"

	// negativeTTL keeps denials cached just long enough to absorb request
	// bursts without letting a later grant go unseen for long.
	negativeTTL = 60 * time.Second
)

// Cache is a Redis-backed consent decision cache. It is an optimization
// only: every entry is bounded by MaxCacheTTL and the checker re-evaluates
// expiry on read, so a stale grant can never be served past its lifetime.
type Cache struct {
	client *redis.Client
}

// NewCache wraps a go-redis client. Returns nil for a nil client so wiring
// can pass the result straight to NewChecker.
func NewCache(client *redis.Client) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client}
}

func cacheKey(purpose domain.PurposeID, subject domain.SubjectHash) string {
	return cacheKeyPrefix + purpose.String() + ":" + subject.String()
}

// Get returns the cached decision, if any. Cache errors degrade to a miss;
// the oracle remains the source of truth.
func (c *Cache) Get(ctx context.Context, purpose domain.PurposeID, subject domain.SubjectHash) (Decision, bool) {
	raw, err := c.client.Get(ctx, cacheKey(purpose, subject)).Bytes()
	if err == redis.Nil {
		cacheLookups.WithLabelValues("miss").Inc()
		return Decision{}, false
	}
	if err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		return Decision{}, false
	}

	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		return Decision{}, false
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return decision, true
}

// Put stores a decision with a TTL bounded by the grant lifetime and
// MaxCacheTTL. Non-granted decisions get the short negative TTL.
func (c *Cache) Put(ctx context.Context, decision Decision) {
	ttl := negativeTTL
	if decision.Status == StatusGranted {
		ttl = MaxCacheTTL
		if !decision.ExpiresAt.IsZero() {
			if until := time.Until(decision.ExpiresAt); until < ttl {
				ttl = until
			}
		}
		if ttl <= 0 {
			return
		}
	}

	raw, err := json.Marshal(decision)
	if err != nil {
		return
	}
	// Best effort; a failed write just means the next request asks the
	// oracle again.
	c.client.Set(ctx, cacheKey(decision.Purpose, decision.Subject), raw, ttl)
}

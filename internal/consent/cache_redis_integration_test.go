//go:build integration

package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"deltagate/internal/consent"
	"deltagate/internal/domain"
	"deltagate/pkg/status"
	"deltagate/pkg/testutil/containers"
)

type CacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *consent.Cache
}

func TestCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.cache = consent.NewCache(s.redis.Client)
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CacheSuite) TestPutGetRoundTrip() {
	ctx := context.Background()
	decision := consent.Decision{
		Purpose:   domain.PurposeID("credit_scoring"),
		Subject:   domain.HashSubject("subject-1"),
		Status:    consent.StatusGranted,
		CheckedAt: time.Now().Truncate(time.Millisecond),
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Millisecond),
	}

	s.cache.Put(ctx, decision)

	got, ok := s.cache.Get(ctx, decision.Purpose, decision.Subject)
	s.Require().True(ok)
	s.Equal(decision.Status, got.Status)
	s.Equal(decision.Subject, got.Subject)
}

func (s *CacheSuite) TestMissReturnsFalse() {
	_, ok := s.cache.Get(context.Background(), domain.PurposeID("credit_scoring"), domain.HashSubject("nobody"))
	s.False(ok)
}

func (s *CacheSuite) TestTTLNeverExceedsGrantLifetime() {
	ctx := context.Background()
	decision := consent.Decision{
		Purpose:   domain.PurposeID("credit_scoring"),
		Subject:   domain.HashSubject("subject-2"),
		Status:    consent.StatusGranted,
		CheckedAt: time.Now(),
		ExpiresAt: time.Now().Add(500 * time.Millisecond),
	}
	s.cache.Put(ctx, decision)

	_, ok := s.cache.Get(ctx, decision.Purpose, decision.Subject)
	s.True(ok)

	time.Sleep(700 * time.Millisecond)

	_, ok = s.cache.Get(ctx, decision.Purpose, decision.Subject)
	s.False(ok, "cache entry must not outlive the grant")
}

// TestCachedRevocationWindow verifies the checker never serves a grant from
// cache once the grant's own expiry has passed, even inside the cache TTL.
func (s *CacheSuite) TestCheckerRechecksExpiredCachedGrant() {
	ctx := context.Background()
	oracle := consent.NewMemoryOracle()
	checker := consent.NewChecker(oracle, s.cache, time.Second, nil)

	purpose := domain.PurposeID("credit_scoring")
	subject := domain.HashSubject("subject-3")
	oracle.Grant(purpose, subject, 300*time.Millisecond)

	_, err := checker.Require(ctx, purpose, subject)
	s.Require().NoError(err)

	time.Sleep(400 * time.Millisecond)

	_, err = checker.Require(ctx, purpose, subject)
	s.Require().ErrorIs(err, status.New(status.CodeNoConsent, ""))
}

// Package aggregates serves the historical context a transaction is
// scored against, caching computed aggregates under a context
// fingerprint so repeated traffic from the same user and channel does
// not hammer the database.
package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
)

// DefaultTTL is how long a computed context stays valid.
const DefaultTTL = 5 * time.Minute

// Querier is the slice of the repository the service needs.
type Querier interface {
	AggregateContext(ctx context.Context, userID, city, network string, txnType domain.TransactionType) (*domain.AggregateContext, error)
	CountUserTransactions(ctx context.Context, userID string, since time.Time) (int64, error)
}

// Service computes and caches aggregate contexts.
type Service struct {
	repo  Querier
	cache domain.Cache
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithClock injects a clock, used by tests to control staleness.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the aggregate service. cache may be nil, in which
// case every call hits the repository.
func NewService(repo Querier, cache domain.Cache, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		repo:  repo,
		cache: cache,
		ttl:   DefaultTTL,
		now:   time.Now,
		log:   log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Fingerprint is the cache key for one scoring context.
func Fingerprint(userID, city, network string, txnType domain.TransactionType) string {
	return fmt.Sprintf("aggctx:%s|%s|%s|%s", userID, city, network, txnType)
}

// envelope wraps a cached context with its computation time so
// staleness survives cache backends without precise TTL semantics.
type envelope struct {
	Value     *domain.AggregateContext `json:"value"`
	FetchedAt time.Time                `json:"fetchedAt"`
}

// Context returns the aggregate context for a transaction's user and
// channel, from cache when fresh, otherwise computed and cached.
func (s *Service) Context(ctx context.Context, userID, city, network string, txnType domain.TransactionType) (*domain.AggregateContext, error) {
	key := Fingerprint(userID, city, network, txnType)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil && data != nil {
			var env envelope
			if err := json.Unmarshal(data, &env); err == nil && env.Value != nil {
				if s.now().Sub(env.FetchedAt) <= s.ttl {
					return env.Value, nil
				}
			}
		}
	}

	agg, err := s.repo.AggregateContext(ctx, userID, city, network, txnType)
	if err != nil {
		return nil, fmt.Errorf("aggregate context for %s: %w", userID, err)
	}

	if s.cache != nil {
		env := envelope{Value: agg, FetchedAt: s.now()}
		if data, err := json.Marshal(env); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				s.log.Warn("aggregate cache write failed", "key", key, "error", err)
			}
		}
	}
	return agg, nil
}

// VelocityCount returns the user's transaction count inside a trailing
// window, for velocity rules.
func (s *Service) VelocityCount(ctx context.Context, userID string, window time.Duration) (int64, error) {
	since := s.now().Add(-window)
	return s.repo.CountUserTransactions(ctx, userID, since)
}

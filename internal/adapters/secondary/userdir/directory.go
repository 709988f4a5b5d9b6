// Package userdir answers "who is this user right now" for the identity gate,
// in front of the user repository.
package userdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/metrics"
)

// Lookup results reported to metrics.
const (
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultNotFound    = "not_found"
	ResultUnavailable = "unavailable"
)

// ErrUnavailable is returned while the breaker is open or the store fails.
var ErrUnavailable = fmt.Errorf("%w: user directory", apperrors.ErrServiceUnavailable)

// Source is the authoritative user store.
type Source interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Options configures a Directory.
type Options struct {
	CacheSize int
	// CacheTTL of zero disables caching.
	CacheTTL        time.Duration
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	BreakerHalfOpen uint32
}

// Directory is a read-through cache with a circuit breaker over Source.
type Directory struct {
	source  Source
	cache   *expirable.LRU[uuid.UUID, domain.User]
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a Directory. metrics may be nil.
func New(source Source, opts Options, logger *slog.Logger, m *metrics.Metrics) *Directory {
	logger = logger.With("component", "user_directory")

	d := &Directory{
		source:  source,
		logger:  logger,
		metrics: m,
	}
	if opts.CacheTTL > 0 && opts.CacheSize > 0 {
		d.cache = expirable.NewLRU[uuid.UUID, domain.User](opts.CacheSize, nil, opts.CacheTTL)
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "user_lookup",
		MaxRequests: opts.BreakerHalfOpen,
		Timeout:     opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperrors.ErrUserNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return d
}

// GetByID returns the current record for id. Unknown users yield
// apperrors.ErrUserNotFound; store outages yield ErrUnavailable.
func (d *Directory) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if d.cache != nil {
		if cached, ok := d.cache.Get(id); ok {
			d.metrics.UserLookup(ResultHit)
			user := cached
			return &user, nil
		}
	}
	d.metrics.UserLookup(ResultMiss)

	result, err := d.breaker.Execute(func() (interface{}, error) {
		return d.source.GetByID(ctx, id)
	})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		d.metrics.UserLookup(ResultNotFound)
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		d.metrics.UserLookup(ResultUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		d.metrics.UserLookup(ResultUnavailable)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	user, ok := result.(*domain.User)
	if !ok || user == nil {
		d.metrics.UserLookup(ResultUnavailable)
		return nil, fmt.Errorf("%w: empty result", ErrUnavailable)
	}
	if d.cache != nil {
		d.cache.Add(id, *user)
	}
	return user, nil
}

// Invalidate drops any cached record for id.
func (d *Directory) Invalidate(id uuid.UUID) {
	if d.cache != nil {
		d.cache.Remove(id)
	}
}

// State reports the breaker state, for health output.
func (d *Directory) State() string {
	return d.breaker.State().String()
}

package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrUnavailable is returned while the breaker is open or half-open and
// saturated.
var ErrUnavailable = errors.New("catalog unavailable")

type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "catalog",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker guards a Catalog with a circuit breaker. A missing product is an
// answer, not a failure, so it never counts towards tripping.
type Breaker struct {
	next   Catalog
	get    *gobreaker.CircuitBreaker[*domain.Product]
	list   *gobreaker.CircuitBreaker[[]*domain.Product]
	logger *zap.Logger
}

func NewBreaker(next Catalog, s BreakerSettings, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{next: next, logger: logger}

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.FailureThreshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrProductNotFound) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				b.logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}
	}

	b.get = gobreaker.NewCircuitBreaker[*domain.Product](settings(s.Name + ".get"))
	b.list = gobreaker.NewCircuitBreaker[[]*domain.Product](settings(s.Name + ".list"))
	return b
}

func (b *Breaker) GetProduct(ctx context.Context, ref string) (*domain.Product, error) {
	p, err := b.get.Execute(func() (*domain.Product, error) {
		return b.next.GetProduct(ctx, ref)
	})
	return p, translate(err)
}

func (b *Breaker) ListProducts(ctx context.Context, category string) ([]*domain.Product, error) {
	ps, err := b.list.Execute(func() ([]*domain.Product, error) {
		return b.next.ListProducts(ctx, category)
	})
	return ps, translate(err)
}

func (b *Breaker) State() gobreaker.State {
	return b.get.State()
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

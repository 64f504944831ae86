package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cacheOpTimeout = time.Second

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Catalog
	matcher domain.Matcher
	logger  *zap.Logger
	now     func() time.Time
	sfg     singleflight.Group // Prevents cache stampede
}

type Option func(*CartService)

func WithMatcher(m domain.Matcher) Option {
	return func(s *CartService) { s.matcher = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *CartService) { s.logger = l }
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, cat catalog.Catalog, opts ...Option) *CartService {
	s := &CartService{
		repo:    repo,
		cache:   cache,
		catalog: cat,
		matcher: domain.DefaultMatcher,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MergeResult is the cart after a guest merge plus the guest product refs
// that no longer exist in the catalog.
type MergeResult struct {
	Cart    *domain.Cart `json:"cart"`
	Skipped []string     `json:"skipped"`
}

func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.NewCart(userID, s.now()), nil
		}
		if err != nil {
			return nil, err
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
		defer cancel()
		if err := s.cache.Set(setCtx, userID, cart); err != nil {
			s.logger.Warn("cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddLine prices the line from the catalog and merges it into the user's
// cart.
func (s *CartService) AddLine(ctx context.Context, userID, productRef string, quantity int, v *domain.Variation) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	product, err := s.catalog.GetProduct(ctx, productRef)
	if err != nil {
		return nil, err
	}

	line := domain.NewLine(*product, quantity, v, s.now())
	return s.update(ctx, userID, "add line", func(c *domain.Cart) error {
		items, err := c.Items.Add(s.matcher, line)
		if err != nil {
			return err
		}
		c.Items = items
		return nil
	})
}

// UpdateQuantity sets the quantity of the matching line; zero or less
// removes it.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productRef string, quantity int, v *domain.Variation) (*domain.Cart, error) {
	key := domain.LineKey{ProductRef: productRef, Variation: v}
	return s.update(ctx, userID, "update quantity", func(c *domain.Cart) error {
		items, err := c.Items.SetQuantity(s.matcher, key, quantity)
		if err != nil {
			return err
		}
		c.Items = items
		return nil
	})
}

func (s *CartService) RemoveLine(ctx context.Context, userID, productRef string, v *domain.Variation) (*domain.Cart, error) {
	key := domain.LineKey{ProductRef: productRef, Variation: v}
	return s.update(ctx, userID, "remove line", func(c *domain.Cart) error {
		items, err := c.Items.Remove(s.matcher, key)
		if err != nil {
			return err
		}
		c.Items = items
		return nil
	})
}

// ClearCart deletes the user's cart. Clearing a cart that does not exist
// succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.logger.Error("repo delete cart failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(ctx, userID)
	return nil
}

// MergeGuestCart folds device-local lines into the user's cart. Each line is
// re-priced from the catalog; lines whose product is gone are skipped and
// reported.
func (s *CartService) MergeGuestCart(ctx context.Context, userID string, guest domain.Lines) (*MergeResult, error) {
	now := s.now()
	products := make(map[string]*domain.Product)
	var (
		priced  domain.Lines
		skipped []string
	)

	for _, l := range guest {
		if l.Quantity < 1 {
			continue
		}
		p, seen := products[l.ProductRef]
		if !seen {
			var err error
			p, err = s.catalog.GetProduct(ctx, l.ProductRef)
			switch {
			case errors.Is(err, catalog.ErrProductNotFound):
				p = nil
				skipped = append(skipped, l.ProductRef)
			case err != nil:
				return nil, fmt.Errorf("price guest line %s: %w", l.ProductRef, err)
			}
			products[l.ProductRef] = p
		}
		if p == nil {
			continue
		}
		priced = append(priced, domain.NewLine(*p, l.Quantity, l.Variation, now))
	}

	var (
		cart *domain.Cart
		err  error
	)
	if len(priced) == 0 {
		cart, err = s.GetCart(ctx, userID)
	} else {
		cart, err = s.update(ctx, userID, "merge guest cart", func(c *domain.Cart) error {
			for _, l := range priced {
				items, err := c.Items.Add(s.matcher, l)
				if err != nil {
					return err
				}
				c.Items = items
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	if len(skipped) > 0 {
		s.logger.Info("guest lines skipped on merge", zap.String("user_id", userID), zap.Strings("product_refs", skipped))
	}
	return &MergeResult{Cart: cart, Skipped: skipped}, nil
}

func (s *CartService) update(ctx context.Context, userID, op string, mutate func(*domain.Cart) error) (*domain.Cart, error) {
	cart, err := s.repo.UpdateCart(ctx, userID, mutate)
	if err != nil {
		if !errors.Is(err, domain.ErrLineNotFound) && !errors.Is(err, domain.ErrInvalidQuantity) && !errors.Is(err, domain.ErrQuantityLimit) {
			s.logger.Error("repo "+op+" failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, err
	}

	s.invalidateCache(ctx, userID)
	return cart, nil
}

func (s *CartService) invalidateCache(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Package guestcart keeps the cart of a user who has not logged in. Lines are
// stored as one JSON array under a single key of an injected key-value store.
//
// Operations never return errors: storage and decoding failures are logged and
// the operation degrades to an empty or unmodified cart.
package guestcart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/kv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultKey = "guestCart"

// Merger receives the guest lines when the user logs in.
type Merger interface {
	MergeGuestCart(ctx context.Context, lines domain.Lines) error
}

type Store struct {
	storage kv.Store
	key     string
	matcher domain.Matcher
	logger  *zap.Logger
	now     func() time.Time

	// serializes read-modify-write cycles
	mu sync.Mutex
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithMatcher(m domain.Matcher) Option {
	return func(s *Store) { s.matcher = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func NewStore(storage kv.Store, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		key:     DefaultKey,
		matcher: domain.DefaultMatcher,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the persisted lines, or an empty sequence when nothing is
// stored or the stored value cannot be read.
func (s *Store) Load(ctx context.Context) domain.Lines {
	lines, _ := s.read(ctx)
	return lines
}

// Add merges quantity units of product into the line matching variation, or
// appends a new line priced at the product's current price.
func (s *Store) Add(ctx context.Context, product domain.Product, quantity int, variation *domain.Variation) domain.Lines {
	return s.mutate(ctx, "add", func(lines domain.Lines) (domain.Lines, error) {
		return lines.Add(s.matcher, domain.NewLine(product, quantity, variation, s.now()))
	})
}

// Update sets the quantity of the matching line. A quantity of zero or less
// removes the line.
func (s *Store) Update(ctx context.Context, productRef string, quantity int, variation *domain.Variation) domain.Lines {
	key := domain.LineKey{ProductRef: productRef, Variation: variation}
	return s.mutate(ctx, "update", func(lines domain.Lines) (domain.Lines, error) {
		return lines.SetQuantity(s.matcher, key, quantity)
	})
}

// Remove deletes the line matching productRef and variation.
func (s *Store) Remove(ctx context.Context, productRef string, variation *domain.Variation) domain.Lines {
	key := domain.LineKey{ProductRef: productRef, Variation: variation}
	return s.mutate(ctx, "remove", func(lines domain.Lines) (domain.Lines, error) {
		return lines.Remove(s.matcher, key)
	})
}

// RemoveProduct deletes every variation of productRef.
func (s *Store) RemoveProduct(ctx context.Context, productRef string) domain.Lines {
	return s.mutate(ctx, "remove_product", func(lines domain.Lines) (domain.Lines, error) {
		return lines.RemoveProduct(productRef)
	})
}

// Clear deletes the stored cart.
func (s *Store) Clear(ctx context.Context) domain.Lines {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(ctx, s.key); err != nil {
		s.logger.Error("guest cart clear failed", zap.String("key", s.key), zap.Error(err))
	}
	return domain.Lines{}
}

// Count is the sum of quantities; 0 when the cart cannot be read.
func (s *Store) Count(ctx context.Context) int {
	return s.Load(ctx).Count()
}

func (s *Store) Total(ctx context.Context) decimal.Decimal {
	return s.Load(ctx).Total()
}

// MergeInto hands the guest lines to m and clears the guest cart once m has
// accepted them. An empty cart is not sent.
func (s *Store) MergeInto(ctx context.Context, m Merger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.read(ctx)
	if err != nil {
		return fmt.Errorf("read guest cart: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}
	if err := m.MergeGuestCart(ctx, lines); err != nil {
		return fmt.Errorf("merge guest cart: %w", err)
	}
	if err := s.storage.Delete(ctx, s.key); err != nil {
		s.logger.Error("guest cart clear after merge failed", zap.String("key", s.key), zap.Error(err))
	}
	s.logger.Info("guest cart merged", zap.Int("lines", len(lines)), zap.Int("count", lines.Count()))
	return nil
}

// mutate runs one read-modify-write cycle. A storage read failure skips the
// write so the stored cart is never replaced by an empty one.
func (s *Store) mutate(ctx context.Context, op string, fn func(domain.Lines) (domain.Lines, error)) domain.Lines {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.read(ctx)
	if err != nil {
		return domain.Lines{}
	}

	updated, err := fn(lines)
	if err != nil {
		s.logger.Debug("guest cart unchanged", zap.String("op", op), zap.Error(err))
		return lines
	}

	if err := s.write(ctx, updated); err != nil {
		s.logger.Error("guest cart write failed", zap.String("op", op), zap.String("key", s.key), zap.Error(err))
		return lines
	}
	return updated
}

// read returns an error only for storage failures. Absent and corrupt values
// read as an empty cart.
func (s *Store) read(ctx context.Context) (domain.Lines, error) {
	raw, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.Lines{}, nil
	}
	if err != nil {
		s.logger.Error("guest cart read failed", zap.String("key", s.key), zap.Error(err))
		return domain.Lines{}, err
	}

	var lines domain.Lines
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		s.logger.Warn("guest cart is corrupt, treating as empty", zap.String("key", s.key), zap.Error(err))
		return domain.Lines{}, nil
	}

	valid := make(domain.Lines, 0, len(lines))
	for _, l := range lines {
		if l.Quantity >= 1 {
			valid = append(valid, l)
		}
	}
	return valid, nil
}

func (s *Store) write(ctx context.Context, lines domain.Lines) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal guest cart failed: %w", err)
	}
	return s.storage.Set(ctx, s.key, string(data))
}

package repository

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// UpdateCart loads the user's cart (a new empty one if none exists),
	// applies mutate and stores the result. An error from mutate aborts the
	// update and is returned as is.
	UpdateCart(ctx context.Context, userID string, mutate func(*domain.Cart) error) (*domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// Package catalog looks up the products a cart line is priced from.
package catalog

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

type Catalog interface {
	GetProduct(ctx context.Context, ref string) (*domain.Product, error)
	// ListProducts returns every product, or only those of category when it
	// is not empty.
	ListProducts(ctx context.Context, category string) ([]*domain.Product, error)
}

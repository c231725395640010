package application

import (
	"context"
	"errors"

	"github.com/orderflow/reconciler/internal/catalog/domain"
)

var ErrNotFound = errors.New("not found")

type ProductRepository interface {
	Get(ctx context.Context, id string) (domain.Product, error)
	GetVariant(ctx context.Context, productID, variantID string) (domain.Variant, error)
	Create(ctx context.Context, p domain.Product) error
}

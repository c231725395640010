package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderflow/reconciler/internal/catalog/domain"
)

type Service struct {
	log      *slog.Logger
	products ProductRepository
}

func NewService(log *slog.Logger, products ProductRepository) *Service {
	return &Service{log: log, products: products}
}

// ResolvePrice returns the catalog price and display name for a product
// reference. Unknown references get a stand-in product recorded at the
// client-supplied price so the order can still be written with a resolvable
// foreign key.
func (s *Service) ResolvePrice(ctx context.Context, productID string, variantID *string, clientName string, clientPrice decimal.Decimal) (decimal.Decimal, string, error) {
	p, err := s.products.Get(ctx, productID)
	if errors.Is(err, ErrNotFound) {
		now := time.Now().UTC()
		standIn := domain.Product{
			ID:        productID,
			Name:      clientName,
			Price:     clientPrice,
			StandIn:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.products.Create(ctx, standIn); err != nil {
			return decimal.Decimal{}, "", err
		}
		s.log.Warn("created stand-in product for unknown reference", "product_id", productID)
		return clientPrice, clientName, nil
	}
	if err != nil {
		return decimal.Decimal{}, "", err
	}

	if variantID != nil {
		v, err := s.products.GetVariant(ctx, productID, *variantID)
		if err == nil {
			return v.Price, p.Name + " / " + v.Name, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return decimal.Decimal{}, "", err
		}
		s.log.Warn("unknown variant, falling back to product price", "product_id", productID, "variant_id", *variantID)
	}
	return p.Price, p.Name, nil
}

package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	orderdomain "github.com/orderflow/reconciler/internal/order/domain"
	"github.com/orderflow/reconciler/internal/payment/domain"
)

type GatewayClient interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (domain.Intent, error)
}

// OrderStore is the slice of the order repository the payment flows touch.
type OrderStore interface {
	CreateWithOutbox(ctx context.Context, o orderdomain.Order, eventType string, payload []byte) error
	GetByPaymentIntent(ctx context.Context, intentID string) (orderdomain.Order, error)
	UpdateStatusIfNewer(ctx context.Context, id string, status orderdomain.OrderStatus, eventAt time.Time, source string) (bool, error)
}

type AddressStore interface {
	Create(ctx context.Context, a orderdomain.Address) error
}

type IdentityResolver interface {
	Resolve(ctx context.Context, subject, email, name string) (orderdomain.User, error)
}

// PriceSource returns the catalog price-of-record and display name for a
// product reference, creating a stand-in product when the reference is
// unknown.
type PriceSource interface {
	ResolvePrice(ctx context.Context, productID string, variantID *string, clientName string, clientPrice decimal.Decimal) (decimal.Decimal, string, error)
}

// DedupeStore fences duplicate deliveries. A nil store degrades to
// non-idempotent processing.
type DedupeStore interface {
	Seen(ctx context.Context, key string) (bool, error)
}

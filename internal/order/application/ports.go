package application

import (
	"context"
	"time"

	"github.com/orderflow/reconciler/internal/order/domain"
)

// ExportRecord is an order joined with the denormalized user fields the
// content mirror wants on its documents.
type ExportRecord struct {
	Order     domain.Order
	UserEmail string
	UserName  string
}

type OrderRepository interface {
	// CreateWithOutbox persists the order, its items and an outbox event in
	// one transaction.
	CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte) error
	Get(ctx context.Context, id string) (domain.Order, error)
	GetForUser(ctx context.Context, id, userID string) (domain.Order, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	// UpdateStatusIfNewer applies status iff eventAt is not older than the
	// order's last applied external event. Returns false when skipped as
	// stale or when the status already matches.
	UpdateStatusIfNewer(ctx context.Context, id string, status domain.OrderStatus, eventAt time.Time, source string) (bool, error)
	// ListForExport returns all orders, newest first, with user fields joined.
	ListForExport(ctx context.Context) ([]ExportRecord, error)
	// UpsertFromRemote updates mutable fields and fully replaces items, or
	// creates the order under its remote-supplied id. Returns true when the
	// order was created.
	UpsertFromRemote(ctx context.Context, o domain.Order) (bool, error)
}

type UserRepository interface {
	ByAuthSubject(ctx context.Context, subject string) (domain.User, error)
	ByEmail(ctx context.Context, email string) (domain.User, error)
	Create(ctx context.Context, u domain.User) error
	AttachAuthSubject(ctx context.Context, userID, subject string) error
}

type AddressRepository interface {
	ListForUser(ctx context.Context, userID string) ([]domain.Address, error)
	GetForUser(ctx context.Context, id, userID string) (domain.Address, error)
	// Create honors IsDefault atomically: clearing previous defaults and
	// inserting happen in the same transaction.
	Create(ctx context.Context, a domain.Address) error
	Update(ctx context.Context, a domain.Address) error
	Delete(ctx context.Context, id, userID string) error
	// SetDefault clears every default for the user and marks the given
	// address, as a single transaction.
	SetDefault(ctx context.Context, userID, id string) error
}

package domain

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// ParseStatus maps a wire value onto the closed status set. Anything
// unrecognized coerces to PENDING so a bad value from an external system
// never blocks a sync batch or leaks into the store.
func ParseStatus(s string) OrderStatus {
	switch OrderStatus(s) {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return OrderStatus(s)
	default:
		return StatusPending
	}
}

type Order struct {
	ID                string
	Number            string
	UserID            string
	Items             []OrderItem
	Total             decimal.Decimal
	Status            OrderStatus
	ShippingAddressID *string
	PaymentIntentID   *string
	// LastEventAt is the timestamp of the newest external event applied to
	// this order; status writes carrying an older timestamp are skipped.
	LastEventAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderItem struct {
	ProductID   string
	VariantID   *string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewOrder builds an order with a server-computed total. The per-item price
// is captured as-is; historical orders stay immutable when catalog prices
// move later.
func NewOrder(userID string, items []OrderItem) Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	now := time.Now().UTC()
	return Order{
		ID:        uuid.NewString(),
		Number:    NewOrderNumber(now),
		UserID:    userID,
		Items:     items,
		Total:     total,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewOrderNumber is the human-facing order reference: timestamp plus a random
// suffix. Not globally unique by construction, collisions are improbable and
// the internal id is the real key.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102150405"), rand.IntN(10000))
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog price-of-record. StandIn marks a placeholder row
// created for a product reference that was unknown when an order arrived.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	StandIn   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Variant struct {
	ID        string
	ProductID string
	Name      string
	Price     decimal.Decimal
}

package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	orderapp "github.com/orderflow/reconciler/internal/order/application"
	orderdomain "github.com/orderflow/reconciler/internal/order/domain"
	"github.com/orderflow/reconciler/pkg/idempotency"
)

var ErrDuplicateCheckout = errors.New("duplicate checkout attempt")

type CheckoutItem struct {
	ProductID string
	VariantID *string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

type ShippingInput struct {
	FullName   string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

type CheckoutInput struct {
	Subject        string
	Email          string
	Name           string
	Items          []CheckoutItem
	Shipping       *ShippingInput
	IdempotencyKey string
}

type CheckoutResult struct {
	OrderID      string
	OrderNumber  string
	IntentID     string
	ClientSecret string
}

// Checkout creates a payment intent and the optimistic order record behind
// it. The total is always computed server-side from the per-item prices.
type Checkout struct {
	log          *slog.Logger
	gateway      GatewayClient
	orders       OrderStore
	addresses    AddressStore
	identity     IdentityResolver
	prices       PriceSource
	idem         DedupeStore
	currency     string
	enforcePrice bool
}

func NewCheckout(log *slog.Logger, gateway GatewayClient, orders OrderStore, addresses AddressStore, identity IdentityResolver, prices PriceSource, idem DedupeStore, currency string, enforcePrice bool) *Checkout {
	return &Checkout{
		log:          log,
		gateway:      gateway,
		orders:       orders,
		addresses:    addresses,
		identity:     identity,
		prices:       prices,
		idem:         idem,
		currency:     currency,
		enforcePrice: enforcePrice,
	}
}

func (c *Checkout) CreatePaymentIntent(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	if len(in.Items) == 0 {
		return CheckoutResult{}, orderapp.ErrValidation
	}
	for _, it := range in.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.Price.IsNegative() {
			return CheckoutResult{}, orderapp.ErrValidation
		}
	}

	if in.IdempotencyKey != "" && c.idem != nil {
		seen, err := c.idem.Seen(ctx, idempotency.CheckoutKey(in.IdempotencyKey))
		if err != nil {
			c.log.Warn("checkout idempotency check unavailable", "err", err)
		} else if seen {
			return CheckoutResult{}, ErrDuplicateCheckout
		}
	}

	user, err := c.identity.Resolve(ctx, in.Subject, in.Email, in.Name)
	if err != nil {
		return CheckoutResult{}, err
	}

	items := make([]orderdomain.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		price, name, err := c.prices.ResolvePrice(ctx, it.ProductID, it.VariantID, it.Name, it.Price)
		if err != nil {
			return CheckoutResult{}, err
		}
		if !price.Equal(it.Price) {
			// Known trust boundary: the client supplies per-item prices. The
			// catalog price wins only when enforcement is on.
			c.log.Warn("client price diverges from catalog",
				"product_id", it.ProductID, "client", it.Price, "catalog", price, "enforced", c.enforcePrice)
			if !c.enforcePrice {
				price = it.Price
			}
		}
		items = append(items, orderdomain.OrderItem{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: name,
			Quantity:    it.Quantity,
			Price:       price,
		})
	}

	order := orderdomain.NewOrder(user.ID, items)

	shipping := ""
	if in.Shipping != nil {
		addr := orderdomain.Address{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			FullName:   in.Shipping.FullName,
			Street:     in.Shipping.Street,
			City:       in.Shipping.City,
			State:      in.Shipping.State,
			PostalCode: in.Shipping.PostalCode,
			Country:    in.Shipping.Country,
			CreatedAt:  order.CreatedAt,
			UpdatedAt:  order.CreatedAt,
		}
		if err := c.addresses.Create(ctx, addr); err != nil {
			return CheckoutResult{}, err
		}
		order.ShippingAddressID = &addr.ID
		shipping = formatShipping(addr)
	}

	itemsJSON, _ := json.Marshal(order.Items)
	intent, err := c.gateway.CreateIntent(ctx, toMinorUnits(order.Total), c.currency, map[string]string{
		"order_number":   order.Number,
		"customer_email": user.Email,
		"shipping":       shipping,
		"items":          string(itemsJSON),
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	// The intent exists, so the order is asserted PROCESSING before the
	// payment itself resolves; the webhook confirms or cancels it later.
	order.PaymentIntentID = &intent.ID
	order.Status = orderdomain.StatusProcessing

	payload, _ := json.Marshal(orderdomain.OrderCreated{
		OrderID: order.ID,
		Number:  order.Number,
		UserID:  order.UserID,
		Total:   order.Total.String(),
		Status:  string(order.Status),
	})
	if err := c.orders.CreateWithOutbox(ctx, order, "OrderCreated", payload); err != nil {
		return CheckoutResult{}, err
	}

	return CheckoutResult{
		OrderID:      order.ID,
		OrderNumber:  order.Number,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func formatShipping(a orderdomain.Address) string {
	s := a.FullName + ", " + a.Street + ", " + a.City
	if a.State != "" {
		s += ", " + a.State
	}
	return s + " " + a.PostalCode + ", " + a.Country
}

package http

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	orderapp "github.com/orderflow/reconciler/internal/order/application"
	orderdomain "github.com/orderflow/reconciler/internal/order/domain"
	"github.com/orderflow/reconciler/internal/payment/application"
	"github.com/orderflow/reconciler/internal/payment/domain"
	"github.com/orderflow/reconciler/pkg/auth"
)

type stubGateway struct{}

func (stubGateway) CreateIntent(context.Context, int64, string, map[string]string) (domain.Intent, error) {
	return domain.Intent{ID: "pi_test", ClientSecret: "secret_pi_test"}, nil
}

// conflictOrders rejects every create the way the repository does when the
// payment intent already belongs to another order.
type conflictOrders struct{}

func (conflictOrders) CreateWithOutbox(context.Context, orderdomain.Order, string, []byte) error {
	return orderapp.ErrIntentConflict
}

func (conflictOrders) GetByPaymentIntent(context.Context, string) (orderdomain.Order, error) {
	return orderdomain.Order{}, orderapp.ErrNotFound
}

func (conflictOrders) UpdateStatusIfNewer(context.Context, string, orderdomain.OrderStatus, time.Time, string) (bool, error) {
	return false, nil
}

type stubIdentity struct{}

func (stubIdentity) Resolve(_ context.Context, subject, email, name string) (orderdomain.User, error) {
	return orderdomain.User{ID: "u1", Email: email, Name: name}, nil
}

type echoPrices struct{}

func (echoPrices) ResolvePrice(_ context.Context, _ string, _ *string, clientName string, clientPrice decimal.Decimal) (decimal.Decimal, string, error) {
	return clientPrice, clientName, nil
}

func asCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithClaims(r.Context(), auth.Claims{Subject: "auth0|cust", Email: "c@example.com", Name: "Customer"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestCheckoutIntentConflictReturnsConflict(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	checkout := application.NewCheckout(log, stubGateway{}, conflictOrders{}, nil, stubIdentity{}, echoPrices{}, nil, "usd", false)
	h := NewHandler(log, checkout, nil, nil)
	srv := httptest.NewServer(asCustomer(h.Routes()))
	defer srv.Close()

	body := []byte(`{"items":[{"productId":"p1","name":"Widget","price":"12.50","quantity":1}]}`)
	resp, err := http.Post(srv.URL+"/checkout/payment-intent", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

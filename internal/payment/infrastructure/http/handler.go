package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	orderapp "github.com/orderflow/reconciler/internal/order/application"
	"github.com/orderflow/reconciler/internal/payment/application"
	"github.com/orderflow/reconciler/internal/payment/infrastructure/gateway"
	"github.com/orderflow/reconciler/pkg/auth"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	log      *slog.Logger
	checkout *application.Checkout
	webhook  *application.Webhook
	verifier *gateway.Client
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, checkout *application.Checkout, webhook *application.Webhook, verifier *gateway.Client) *Handler {
	return &Handler{
		log:      log,
		checkout: checkout,
		webhook:  webhook,
		verifier: verifier,
		tracer:   otel.Tracer("payment-http"),
	}
}

// Register wires the authenticated checkout route; the webhook route is
// registered separately because the gateway does not carry a bearer token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/checkout/payment-intent", h.createPaymentIntent)
}

func (h *Handler) RegisterWebhook(r chi.Router) {
	r.Post("/webhooks/payment", h.paymentWebhook)
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterWebhook(r)
	return r
}

type checkoutItemReq struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Name      string  `json:"name"`
	Price     string  `json:"price"`
	Quantity  int     `json:"quantity"`
}

type checkoutReq struct {
	Items    []checkoutItemReq `json:"items"`
	Shipping *shippingReq      `json:"shipping,omitempty"`
}

type shippingReq struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreatePaymentIntent")
	defer span.End()

	claims, ok := auth.FromContext(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	in := application.CheckoutInput{
		Subject:        claims.Subject,
		Email:          claims.Email,
		Name:           claims.Name,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, it := range req.Items {
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			http.Error(w, "invalid item price", http.StatusBadRequest)
			return
		}
		in.Items = append(in.Items, application.CheckoutItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			Price:     price,
			Quantity:  it.Quantity,
		})
	}
	if req.Shipping != nil {
		in.Shipping = &application.ShippingInput{
			FullName:   req.Shipping.FullName,
			Street:     req.Shipping.Street,
			City:       req.Shipping.City,
			State:      req.Shipping.State,
			PostalCode: req.Shipping.PostalCode,
			Country:    req.Shipping.Country,
		}
	}

	res, err := h.checkout.CreatePaymentIntent(ctx, in)
	switch {
	case errors.Is(err, orderapp.ErrValidation):
		http.Error(w, "invalid checkout payload", http.StatusBadRequest)
		return
	case errors.Is(err, application.ErrDuplicateCheckout):
		http.Error(w, "duplicate checkout attempt", http.StatusConflict)
		return
	case errors.Is(err, orderapp.ErrIntentConflict):
		http.Error(w, "payment intent already attached to an order", http.StatusConflict)
		return
	case err != nil:
		h.log.Error("checkout failed", "err", err)
		http.Error(w, "checkout failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"clientSecret": res.ClientSecret,
		"intentId":     res.IntentID,
		"orderId":      res.OrderID,
		"orderNumber":  res.OrderNumber,
	})
}

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentWebhook")
	defer span.End()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	// Signature first, over the exact raw bytes. Parsing untrusted JSON
	// before authentication is not an option.
	ev, err := h.verifier.VerifyAndParseEvent(raw, r.Header.Get("Gateway-Signature"))
	if err != nil {
		h.log.Info("webhook rejected", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	outcome, err := h.webhook.HandleEvent(ctx, ev)
	if err != nil {
		h.log.Error("webhook handling failed", "event_id", ev.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"received": "true", "outcome": string(outcome)})
}

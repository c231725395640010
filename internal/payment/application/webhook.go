package application

import (
	"context"
	"errors"
	"log/slog"

	orderapp "github.com/orderflow/reconciler/internal/order/application"
	orderdomain "github.com/orderflow/reconciler/internal/order/domain"
	"github.com/orderflow/reconciler/internal/payment/domain"
	"github.com/orderflow/reconciler/pkg/idempotency"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeSkipped   Outcome = "skipped"
)

// Webhook applies verified gateway events to orders. Every recognized event
// resolves to an outcome rather than an error unless the store itself fails;
// conditions that will never resolve (unknown intent, stale event) must not
// make the sender retry forever.
type Webhook struct {
	log    *slog.Logger
	orders OrderStore
	idem   DedupeStore
}

func NewWebhook(log *slog.Logger, orders OrderStore, idem DedupeStore) *Webhook {
	return &Webhook{log: log, orders: orders, idem: idem}
}

func (w *Webhook) HandleEvent(ctx context.Context, ev domain.Event) (Outcome, error) {
	if w.idem != nil && ev.ID != "" {
		seen, err := w.idem.Seen(ctx, idempotency.EventKey("gateway", ev.ID))
		if err != nil {
			w.log.Warn("event dedupe unavailable", "event_id", ev.ID, "err", err)
		} else if seen {
			return OutcomeDuplicate, nil
		}
	}

	var target orderdomain.OrderStatus
	switch ev.Type {
	case domain.EventPaymentSucceeded:
		target = orderdomain.StatusProcessing
	case domain.EventPaymentFailed:
		target = orderdomain.StatusCancelled
	default:
		return OutcomeIgnored, nil
	}

	order, err := w.orders.GetByPaymentIntent(ctx, ev.Data.PaymentIntentID)
	if errors.Is(err, orderapp.ErrNotFound) {
		w.log.Warn("webhook for unknown payment intent",
			"event_id", ev.ID, "intent_id", ev.Data.PaymentIntentID)
		return OutcomeUnmatched, nil
	}
	if err != nil {
		return "", err
	}

	applied, err := w.orders.UpdateStatusIfNewer(ctx, order.ID, target, ev.CreatedAt, "payment")
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeSkipped, nil
	}
	w.log.Info("order status updated from payment event",
		"order_id", order.ID, "status", target, "event_id", ev.ID)
	return OutcomeApplied, nil
}

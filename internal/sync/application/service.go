package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	mirrordomain "github.com/orderflow/reconciler/internal/mirror/domain"
	orderapp "github.com/orderflow/reconciler/internal/order/application"
	orderdomain "github.com/orderflow/reconciler/internal/order/domain"
)

const (
	ChannelPush    = "push"
	ChannelPull    = "pull"
	ChannelWebhook = "webhook"
)

// Reconciler runs the two batch directions between the order store and the
// content mirror, plus the low-latency single-order path fed by the mirror's
// change webhook. Batches are per-item resilient: one bad order is counted
// and the pass moves on.
type Reconciler struct {
	log    *slog.Logger
	local  LocalStore
	remote RemoteStore
}

func NewReconciler(log *slog.Logger, local LocalStore, remote RemoteStore) *Reconciler {
	return &Reconciler{log: log, local: local, remote: remote}
}

// ExportOrders pushes every local order into the mirror, creating or fully
// replacing the remote document.
func (r *Reconciler) ExportOrders(ctx context.Context) (mirrordomain.SyncStats, error) {
	var stats mirrordomain.SyncStats

	records, err := r.local.ListForExport(ctx)
	if err != nil {
		return stats, fmt.Errorf("list orders for export: %w", err)
	}
	stats.Total = len(records)

	for _, rec := range records {
		doc := BuildDocument(rec)
		existing, err := r.remote.FetchOrder(ctx, doc.ID)
		if err != nil {
			stats.Errors++
			r.log.Error("export: fetch remote failed", "doc_id", doc.ID, "err", err)
			continue
		}
		if existing == nil {
			if err := r.remote.CreateOrder(ctx, doc); err != nil {
				stats.Errors++
				r.log.Error("export: remote create failed", "doc_id", doc.ID, "err", err)
				continue
			}
			stats.Created++
		} else {
			if err := r.remote.ReplaceOrder(ctx, doc); err != nil {
				stats.Errors++
				r.log.Error("export: remote replace failed", "doc_id", doc.ID, "err", err)
				continue
			}
			stats.Updated++
		}
	}

	r.recordOutcome(ctx, ChannelPush, stats)
	return stats, nil
}

// ImportOrders pulls every mirror document into the order store. The remote
// side is the source of truth for this direction: mutable fields are
// overwritten and items fully replaced.
func (r *Reconciler) ImportOrders(ctx context.Context) (mirrordomain.SyncStats, error) {
	var stats mirrordomain.SyncStats

	docs, err := r.remote.ListOrders(ctx)
	if err != nil {
		return stats, fmt.Errorf("list remote orders: %w", err)
	}
	stats.Total = len(docs)

	for _, doc := range docs {
		created, err := r.importOne(ctx, doc)
		if err != nil {
			stats.Errors++
			r.log.Error("import: order failed", "doc_id", doc.ID, "err", err)
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}

	r.recordOutcome(ctx, ChannelPull, stats)
	return stats, nil
}

func (r *Reconciler) importOne(ctx context.Context, doc mirrordomain.OrderDocument) (bool, error) {
	id, ok := mirrordomain.OrderIDFromDoc(doc.ID)
	if !ok {
		return false, fmt.Errorf("document id %q does not carry the order prefix", doc.ID)
	}
	return r.local.UpsertFromRemote(ctx, OrderFromDocument(id, doc))
}

// ApplyRemoteStatusChange is the webhook-driven counterpart to ImportOrders:
// it re-fetches the canonical remote document and applies only its status.
// Applying the same status twice is a no-op beyond timestamp churn.
// Conditions a retry can never resolve (malformed document id, no local
// counterpart) are counted and swallowed so the sender does not redeliver
// forever; only store and transport failures surface as errors.
func (r *Reconciler) ApplyRemoteStatusChange(ctx context.Context, docID string) (mirrordomain.SyncStats, error) {
	stats := mirrordomain.SyncStats{Total: 1}

	id, ok := mirrordomain.OrderIDFromDoc(docID)
	if !ok {
		stats.Errors++
		r.log.Warn("status change for a document id without the order prefix", "doc_id", docID)
		r.recordOutcome(ctx, ChannelWebhook, stats)
		return stats, nil
	}

	// The event payload is not trusted; only the mirror's current document
	// counts.
	doc, err := r.remote.FetchOrder(ctx, docID)
	if err != nil {
		stats.Errors++
		r.recordOutcome(ctx, ChannelWebhook, stats)
		return stats, err
	}
	if doc == nil {
		r.log.Warn("remote document vanished before status apply", "doc_id", docID)
		r.recordOutcome(ctx, ChannelWebhook, stats)
		return stats, nil
	}

	status := orderdomain.ParseStatus(doc.Status)
	eventAt := parseDocTime(doc.UpdatedAt)

	applied, err := r.local.UpdateStatusIfNewer(ctx, id, status, eventAt, "mirror")
	if errors.Is(err, orderapp.ErrNotFound) {
		stats.Errors++
		r.log.Warn("status change for an order with no local counterpart", "doc_id", docID)
		r.recordOutcome(ctx, ChannelWebhook, stats)
		return stats, nil
	}
	if err != nil {
		stats.Errors++
		r.recordOutcome(ctx, ChannelWebhook, stats)
		return stats, err
	}
	if applied {
		stats.Updated++
		r.log.Info("order status applied from mirror", "order_id", id, "status", status)
	}
	r.recordOutcome(ctx, ChannelWebhook, stats)
	return stats, nil
}

// recordOutcome writes the advisory sync-state record. Failures are logged
// and swallowed; bookkeeping never sinks the work it describes.
func (r *Reconciler) recordOutcome(ctx context.Context, channel string, stats mirrordomain.SyncStats) {
	status := mirrordomain.SyncSuccess
	if stats.Errors > 0 {
		status = mirrordomain.SyncFailed
	}
	state := mirrordomain.SyncState{
		LastSyncTime: time.Now().UTC(),
		Status:       status,
		Stats:        stats,
	}
	if err := r.remote.RecordSyncOutcome(ctx, channel, state); err != nil {
		r.log.Warn("sync outcome not recorded", "channel", channel, "err", err)
	}
}

// BuildDocument flattens an order and its joined user fields into the
// mirror's document shape. Decimals become plain numbers and timestamps
// RFC 3339 strings at this boundary.
func BuildDocument(rec orderapp.ExportRecord) mirrordomain.OrderDocument {
	o := rec.Order
	doc := mirrordomain.OrderDocument{
		ID:            mirrordomain.OrderDocID(o.ID),
		Type:          mirrordomain.DocTypeOrder,
		OrderID:       o.ID,
		Number:        o.Number,
		UserID:        o.UserID,
		CustomerEmail: rec.UserEmail,
		CustomerName:  rec.UserName,
		Status:        string(o.Status),
		Total:         o.Total.InexactFloat64(),
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if o.PaymentIntentID != nil {
		doc.PaymentIntentID = *o.PaymentIntentID
	}
	for _, it := range o.Items {
		item := mirrordomain.OrderItemDocument{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price.InexactFloat64(),
		}
		if it.VariantID != nil {
			item.VariantID = *it.VariantID
		}
		doc.Items = append(doc.Items, item)
	}
	return doc
}

// OrderFromDocument is BuildDocument's inverse for the pull direction. An
// out-of-domain status string coerces to PENDING rather than propagating.
func OrderFromDocument(id string, doc mirrordomain.OrderDocument) orderdomain.Order {
	now := time.Now().UTC()
	createdAt := parseDocTimeOr(doc.CreatedAt, now)
	updatedAt := parseDocTimeOr(doc.UpdatedAt, now)

	o := orderdomain.Order{
		ID:        id,
		Number:    doc.Number,
		UserID:    doc.UserID,
		Status:    orderdomain.ParseStatus(doc.Status),
		Total:     decimal.NewFromFloat(doc.Total),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if doc.PaymentIntentID != "" {
		intent := doc.PaymentIntentID
		o.PaymentIntentID = &intent
	}
	eventAt := updatedAt
	o.LastEventAt = &eventAt

	for _, it := range doc.Items {
		item := orderdomain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       decimal.NewFromFloat(it.Price),
		}
		if it.VariantID != "" {
			variant := it.VariantID
			item.VariantID = &variant
		}
		o.Items = append(o.Items, item)
	}
	return o
}

func parseDocTime(s string) time.Time {
	return parseDocTimeOr(s, time.Now().UTC())
}

func parseDocTimeOr(s string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t
}

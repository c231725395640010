package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/reconciler/internal/order/application"
	"github.com/orderflow/reconciler/internal/order/domain"
	"github.com/orderflow/reconciler/pkg/tracing"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const orderColumns = `id, number, user_id, total, status, shipping_address_id, payment_intent_id, last_event_at, created_at, updated_at`

func (r *Repository) CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Non-null payment intent ids must stay unique; checked here inside the
	// transaction rather than by a schema constraint.
	if o.PaymentIntentID != nil {
		var exists bool
		err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE payment_intent_id=$1)`, *o.PaymentIntentID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return application.ErrIntentConflict
		}
	}

	_, err = tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.Number, o.UserID, o.Total, o.Status, o.ShippingAddressID, o.PaymentIntentID, o.LastEventAt, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	if err = insertItems(ctx, tx, o.ID, o.Items); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, o.ID, eventType, payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getWhere(ctx, `id=$1`, id)
}

func (r *Repository) GetForUser(ctx context.Context, id, userID string) (domain.Order, error) {
	return r.getWhere(ctx, `id=$1 AND user_id=$2`, id, userID)
}

func (r *Repository) GetByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	return r.getWhere(ctx, `payment_intent_id=$1`, intentID)
}

func (r *Repository) getWhere(ctx context.Context, where string, args ...any) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, args...).
		Scan(&o.ID, &o.Number, &o.UserID, &o.Total, &o.Status, &o.ShippingAddressID, &o.PaymentIntentID, &o.LastEventAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, application.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	items, err := r.itemsFor(ctx, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = items
	return o, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := r.itemsFor(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *Repository) ListForExport(ctx context.Context) ([]application.ExportRecord, error) {
	// Orders created from a pull can carry a user id with no local row;
	// they still belong in every push batch.
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.number, o.user_id, o.total, o.status, o.shipping_address_id,
		       o.payment_intent_id, o.last_event_at, o.created_at, o.updated_at,
		       COALESCE(u.email, ''), COALESCE(u.name, '')
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		ORDER BY o.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []application.ExportRecord
	for rows.Next() {
		var rec application.ExportRecord
		o := &rec.Order
		if err := rows.Scan(&o.ID, &o.Number, &o.UserID, &o.Total, &o.Status, &o.ShippingAddressID,
			&o.PaymentIntentID, &o.LastEventAt, &o.CreatedAt, &o.UpdatedAt,
			&rec.UserEmail, &rec.UserName); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range records {
		items, err := r.itemsFor(ctx, records[i].Order.ID)
		if err != nil {
			return nil, err
		}
		records[i].Order.Items = items
	}
	return records, nil
}

func (r *Repository) UpdateStatusIfNewer(ctx context.Context, id string, status domain.OrderStatus, eventAt time.Time, source string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var prev domain.OrderStatus
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, application.ErrNotFound
	}
	if err != nil {
		return false, err
	}

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, last_event_at=$3, updated_at=now()
		WHERE id=$1 AND (last_event_at IS NULL OR last_event_at <= $3)`,
		id, status, eventAt)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		// Stale event: a newer one was already applied. Commit the no-op so
		// the row lock releases cleanly.
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		r.log.Info("stale status event skipped", "order_id", id, "status", status, "source", source)
		return false, nil
	}

	if prev != status {
		payload, _ := json.Marshal(domain.OrderStatusChanged{
			OrderID: id,
			From:    string(prev),
			To:      string(status),
			Source:  source,
		})
		if err := insertOutbox(ctx, tx, id, "OrderStatusChanged", payload); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return prev != status, nil
}

func (r *Repository) UpsertFromRemote(ctx context.Context, o domain.Order) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var exists bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
		return false, err
	}

	if exists {
		_, err = tx.Exec(ctx, `
			UPDATE orders SET status=$2, total=$3, payment_intent_id=$4, last_event_at=$5, updated_at=$6
			WHERE id=$1`,
			o.ID, o.Status, o.Total, o.PaymentIntentID, o.LastEventAt, o.UpdatedAt)
		if err != nil {
			return false, err
		}
		// Full replace: the remote document is the pull's source of truth
		// for items. Delete and insert stay inside one transaction so no
		// reader observes an empty item list.
		if _, err = tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
			return false, err
		}
	} else {
		_, err = tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			o.ID, o.Number, o.UserID, o.Total, o.Status, o.ShippingAddressID, o.PaymentIntentID, o.LastEventAt, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return false, err
		}
	}

	if err = insertItems(ctx, tx, o.ID, o.Items); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return !exists, nil
}

func (r *Repository) itemsFor(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, variant_id, product_name, quantity, price
		FROM order_items WHERE order_id=$1 ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID string, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for pos, it := range items {
		batch.Queue(`INSERT INTO order_items (order_id, position, product_id, variant_id, product_name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			orderID, pos, it.ProductID, it.VariantID, it.ProductName, it.Quantity, it.Price)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ('order',$1,$2,$3,$4,'pending')`, aggregateID, eventType, payload, tracing.Traceparent(ctx))
	return err
}

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.Number, &o.UserID, &o.Total, &o.Status, &o.ShippingAddressID,
			&o.PaymentIntentID, &o.LastEventAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

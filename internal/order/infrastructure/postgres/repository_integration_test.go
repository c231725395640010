package postgres_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/reconciler/internal/order/application"
	"github.com/orderflow/reconciler/internal/order/domain"
	"github.com/orderflow/reconciler/internal/order/infrastructure/postgres"
	"github.com/orderflow/reconciler/test/integration"
)

func TestRepositoryAgainstPostgres(t *testing.T) {
	if !integration.Enabled() {
		t.Skip("set INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()
	env, err := integration.SetupPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(ctx) })

	pool, err := env.LoadSchema(ctx, "../../../../db/schema.sql")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log := slog.New(slog.DiscardHandler)
	users := postgres.NewUserRepository(log, pool)
	orders := postgres.NewRepository(log, pool)
	addresses := postgres.NewAddressRepository(log, pool)
	outboxStore := postgres.NewOutboxStore(log, pool)

	now := time.Now().UTC()
	user := domain.User{ID: uuid.NewString(), Email: "it@example.com", Name: "IT", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, users.Create(ctx, user))

	intentID := "pi_" + uuid.NewString()
	order := domain.NewOrder(user.ID, []domain.OrderItem{
		{ProductID: "p1", ProductName: "Widget", Quantity: 2, Price: decimal.RequireFromString("12.50")},
	})
	order.PaymentIntentID = &intentID
	order.Status = domain.StatusProcessing

	payload, _ := json.Marshal(domain.OrderCreated{OrderID: order.ID, Number: order.Number})
	require.NoError(t, orders.CreateWithOutbox(ctx, order, "OrderCreated", payload))

	t.Run("outbox row written in the same transaction", func(t *testing.T) {
		events, err := outboxStore.LockBatch(ctx, "test-relay", 10, 5*time.Second)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, order.ID, events[0].AggregateID)
		require.Equal(t, "OrderCreated", events[0].Type)
		require.NoError(t, outboxStore.MarkSent(ctx, []int64{events[0].ID}))
	})

	t.Run("lookup by exact payment intent id", func(t *testing.T) {
		got, err := orders.GetByPaymentIntent(ctx, intentID)
		require.NoError(t, err)
		require.Equal(t, order.ID, got.ID)
		require.Len(t, got.Items, 1)
		require.True(t, got.Total.Equal(decimal.RequireFromString("25.00")))

		_, err = orders.GetByPaymentIntent(ctx, "pi_other")
		require.ErrorIs(t, err, application.ErrNotFound)
	})

	t.Run("second order on the same intent is rejected", func(t *testing.T) {
		dup := domain.NewOrder(user.ID, nil)
		dup.PaymentIntentID = &intentID
		err := orders.CreateWithOutbox(ctx, dup, "OrderCreated", []byte(`{}`))
		require.ErrorIs(t, err, application.ErrIntentConflict)
	})

	t.Run("status writes honor the event timestamp", func(t *testing.T) {
		t1 := now.Add(time.Minute)
		changed, err := orders.UpdateStatusIfNewer(ctx, order.ID, domain.StatusShipped, t1, "gateway")
		require.NoError(t, err)
		require.True(t, changed)

		// Older event arrives late; it must not regress the status.
		changed, err = orders.UpdateStatusIfNewer(ctx, order.ID, domain.StatusCancelled, t1.Add(-30*time.Second), "gateway")
		require.NoError(t, err)
		require.False(t, changed)

		got, err := orders.Get(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusShipped, got.Status)

		// Same status re-applied with a newer timestamp: token advances but
		// no change event is emitted.
		changed, err = orders.UpdateStatusIfNewer(ctx, order.ID, domain.StatusShipped, t1.Add(time.Minute), "mirror")
		require.NoError(t, err)
		require.False(t, changed)
	})

	t.Run("at most one default address per user", func(t *testing.T) {
		a1 := domain.Address{ID: uuid.NewString(), UserID: user.ID, FullName: "A", Street: "1 St", City: "X", PostalCode: "1", Country: "SE", IsDefault: true, CreatedAt: now, UpdatedAt: now}
		a2 := domain.Address{ID: uuid.NewString(), UserID: user.ID, FullName: "B", Street: "2 St", City: "X", PostalCode: "2", Country: "SE", IsDefault: true, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, addresses.Create(ctx, a1))
		require.NoError(t, addresses.Create(ctx, a2))

		list, err := addresses.ListForUser(ctx, user.ID)
		require.NoError(t, err)
		defaults := 0
		for _, a := range list {
			if a.IsDefault {
				defaults++
				require.Equal(t, a2.ID, a.ID)
			}
		}
		require.Equal(t, 1, defaults)
	})

	t.Run("export includes orders whose user was never provisioned", func(t *testing.T) {
		pulled := domain.NewOrder(uuid.NewString(), []domain.OrderItem{
			{ProductID: "p2", ProductName: "Gadget", Quantity: 1, Price: decimal.RequireFromString("5.00")},
		})
		pulled.UpdatedAt = now.Add(3 * time.Minute)
		created, err := orders.UpsertFromRemote(ctx, pulled)
		require.NoError(t, err)
		require.True(t, created)

		records, err := orders.ListForExport(ctx)
		require.NoError(t, err)
		var found *application.ExportRecord
		for i := range records {
			if records[i].Order.ID == pulled.ID {
				found = &records[i]
			}
		}
		require.NotNil(t, found, "pulled order missing from export batch")
		require.Empty(t, found.UserEmail)
		require.Empty(t, found.UserName)
	})

	t.Run("remote upsert fully replaces items", func(t *testing.T) {
		remote := order
		remote.Items = []domain.OrderItem{
			{ProductID: "p9", ProductName: "Replacement", Quantity: 1, Price: decimal.RequireFromString("9.99")},
		}
		remote.UpdatedAt = now.Add(2 * time.Minute)
		created, err := orders.UpsertFromRemote(ctx, remote)
		require.NoError(t, err)
		require.False(t, created)

		got, err := orders.Get(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		require.Equal(t, "p9", got.Items[0].ProductID)
	})
}

package application

import (
	"context"
	"time"

	mirrordomain "github.com/orderflow/reconciler/internal/mirror/domain"
	orderapp "github.com/orderflow/reconciler/internal/order/application"
	orderdomain "github.com/orderflow/reconciler/internal/order/domain"
)

// LocalStore is the slice of the order repository the reconciler drives.
type LocalStore interface {
	ListForExport(ctx context.Context) ([]orderapp.ExportRecord, error)
	UpsertFromRemote(ctx context.Context, o orderdomain.Order) (bool, error)
	UpdateStatusIfNewer(ctx context.Context, id string, status orderdomain.OrderStatus, eventAt time.Time, source string) (bool, error)
}

// RemoteStore is the content mirror's document API.
type RemoteStore interface {
	FetchOrder(ctx context.Context, docID string) (*mirrordomain.OrderDocument, error)
	CreateOrder(ctx context.Context, doc mirrordomain.OrderDocument) error
	ReplaceOrder(ctx context.Context, doc mirrordomain.OrderDocument) error
	ListOrders(ctx context.Context) ([]mirrordomain.OrderDocument, error)
	RecordSyncOutcome(ctx context.Context, channel string, state mirrordomain.SyncState) error
}

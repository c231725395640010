package domain

import (
	"strings"
	"time"
)

const (
	DocTypeOrder     = "order"
	DocTypeSyncState = "syncState"

	orderDocPrefix = "order-"
)

// OrderDocID derives the mirror document id for a local order. The prefix
// convention must round-trip exactly; OrderIDFromDoc is its inverse.
func OrderDocID(orderID string) string {
	return orderDocPrefix + orderID
}

func OrderIDFromDoc(docID string) (string, bool) {
	if !strings.HasPrefix(docID, orderDocPrefix) || len(docID) == len(orderDocPrefix) {
		return "", false
	}
	return docID[len(orderDocPrefix):], true
}

func SyncStateDocID(channel string) string {
	return "sync-state-" + channel
}

// OrderDocument is the mirror's flat view of an order. Money is a plain
// number and times are RFC 3339 strings; the document store has neither
// decimals nor native timestamps.
type OrderDocument struct {
	ID              string              `json:"_id"`
	Type            string              `json:"_type"`
	OrderID         string              `json:"orderId"`
	Number          string              `json:"orderNumber"`
	UserID          string              `json:"userId"`
	CustomerEmail   string              `json:"customerEmail"`
	CustomerName    string              `json:"customerName"`
	Status          string              `json:"status"`
	Total           float64             `json:"total"`
	PaymentIntentID string              `json:"paymentIntentId,omitempty"`
	Items           []OrderItemDocument `json:"items"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt"`
}

type OrderItemDocument struct {
	ProductID   string  `json:"productId"`
	VariantID   string  `json:"variantId,omitempty"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type SyncStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
	Total   int `json:"total"`
}

const (
	SyncSuccess = "success"
	SyncFailed  = "failed"
)

// SyncState is advisory, last-write-wins bookkeeping for one sync channel.
// It is never consulted by the sync procedures themselves.
type SyncState struct {
	LastSyncTime time.Time `json:"lastSyncTime"`
	Status       string    `json:"syncStatus"`
	Stats        SyncStats `json:"syncStats"`
}

// ChangeEvent is the mirror's webhook payload on document transitions.
type ChangeEvent struct {
	Type          string         `json:"_type"`
	ID            string         `json:"_id"`
	Transition    string         `json:"transition"`
	ChangedFields []string       `json:"changedFields"`
	PreviousValue map[string]any `json:"previousValue"`
}

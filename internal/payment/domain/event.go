package domain

import "time"

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
)

// Event is a decoded, signature-verified gateway webhook event.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      EventData `json:"data"`
}

type EventData struct {
	PaymentIntentID string `json:"payment_intent_id"`
	AmountMinor     int64  `json:"amount_minor"`
	Currency        string `json:"currency"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

// Intent is the gateway's handle for a payment in flight. The client secret
// goes back to the browser; the id becomes the order's stable foreign key.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

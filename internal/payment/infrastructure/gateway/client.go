package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/orderflow/reconciler/internal/payment/domain"
)

const maxAttempts = 3

// Client creates payment intents against the gateway's REST API and decodes
// verified webhook payloads. The gateway owns the actual payment state
// machine; this side only carries metadata in and events out.
type Client struct {
	log           *slog.Logger
	baseURL       string
	apiKey        string
	webhookSecret []byte
	http          *http.Client
}

func NewClient(log *slog.Logger, baseURL, apiKey, webhookSecret string) *Client {
	return &Client{
		log:           log,
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: []byte(webhookSecret),
		http:          &http.Client{Timeout: 15 * time.Second},
	}
}

type createIntentRequest struct {
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateIntent registers a payment intent carrying enough metadata to map the
// eventual webhook back onto an order.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (domain.Intent, error) {
	payload, err := json.Marshal(createIntentRequest{
		AmountMinor: amountMinor,
		Currency:    currency,
		Metadata:    metadata,
	})
	if err != nil {
		return domain.Intent{}, err
	}

	var intent domain.Intent
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("gateway create intent: status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("gateway create intent: status %d", resp.StatusCode))
		}
		if err := json.Unmarshal(body, &intent); err != nil {
			return backoff.Permanent(fmt.Errorf("decode intent: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return domain.Intent{}, err
	}
	return intent, nil
}

// VerifyAndParseEvent authenticates the raw webhook body and only then
// decodes it.
func (c *Client) VerifyAndParseEvent(rawBody []byte, signatureHeader string) (domain.Event, error) {
	if err := VerifySignature(c.webhookSecret, signatureHeader, rawBody, time.Now(), DefaultTolerance); err != nil {
		return domain.Event{}, err
	}
	var ev domain.Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

package contentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/orderflow/reconciler/internal/mirror/domain"
)

const maxAttempts = 3

// Client talks to the content mirror's document API. Server errors and
// transport failures retry with exponential backoff; 4xx responses are
// permanent and surface immediately.
type Client struct {
	log     *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(log *slog.Logger, baseURL, token string) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchOrder returns nil when the document does not exist.
func (c *Client) FetchOrder(ctx context.Context, docID string) (*domain.OrderDocument, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(docID), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	var doc domain.OrderDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", docID, err)
	}
	return &doc, nil
}

func (c *Client) CreateOrder(ctx context.Context, doc domain.OrderDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, _, err = c.do(ctx, http.MethodPost, "/documents", payload)
	return err
}

// ReplaceOrder is a full overwrite of the remote document, not a patch.
func (c *Client) ReplaceOrder(ctx context.Context, doc domain.OrderDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, _, err = c.do(ctx, http.MethodPut, "/documents/"+url.PathEscape(doc.ID), payload)
	return err
}

func (c *Client) ListOrders(ctx context.Context) ([]domain.OrderDocument, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/documents?type="+domain.DocTypeOrder, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Documents []domain.OrderDocument `json:"documents"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode document list: %w", err)
	}
	return out.Documents, nil
}

// RecordSyncOutcome upserts the per-channel sync-state singleton. Callers
// treat failures as advisory; this method never aborts a sync pass.
func (c *Client) RecordSyncOutcome(ctx context.Context, channel string, state domain.SyncState) error {
	doc := struct {
		ID   string `json:"_id"`
		Type string `json:"_type"`
		domain.SyncState
	}{
		ID:        domain.SyncStateDocID(channel),
		Type:      domain.DocTypeSyncState,
		SyncState: state,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, _, err = c.do(ctx, http.MethodPut, "/documents/"+url.PathEscape(doc.ID), payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var (
		respBody []byte
		status   int
	)
	op := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("mirror %s %s: status %d", method, path, resp.StatusCode)
		case resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("mirror %s %s: status %d", method, path, resp.StatusCode))
		}
		respBody = body
		status = resp.StatusCode
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, 0, err
	}
	return respBody, status, nil
}

package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/orderflow/reconciler/internal/mirror/domain"
	orderapp "github.com/orderflow/reconciler/internal/order/application"
	orderdomain "github.com/orderflow/reconciler/internal/order/domain"
	syncapp "github.com/orderflow/reconciler/internal/sync/application"
)

type recordingLocal struct {
	applied []string
}

func (r *recordingLocal) ListForExport(context.Context) ([]orderapp.ExportRecord, error) {
	return nil, nil
}

func (r *recordingLocal) UpsertFromRemote(context.Context, orderdomain.Order) (bool, error) {
	return false, nil
}

func (r *recordingLocal) UpdateStatusIfNewer(_ context.Context, id string, status orderdomain.OrderStatus, _ time.Time, _ string) (bool, error) {
	r.applied = append(r.applied, id+":"+string(status))
	return true, nil
}

// ghostLocal simulates a store that never saw the order the mirror is
// reporting on.
type ghostLocal struct {
	recordingLocal
}

func (g *ghostLocal) UpdateStatusIfNewer(context.Context, string, orderdomain.OrderStatus, time.Time, string) (bool, error) {
	return false, orderapp.ErrNotFound
}

type docRemote struct {
	docs map[string]domain.OrderDocument
}

func (d *docRemote) FetchOrder(_ context.Context, docID string) (*domain.OrderDocument, error) {
	doc, ok := d.docs[docID]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (d *docRemote) CreateOrder(context.Context, domain.OrderDocument) error  { return nil }
func (d *docRemote) ReplaceOrder(context.Context, domain.OrderDocument) error { return nil }
func (d *docRemote) ListOrders(context.Context) ([]domain.OrderDocument, error) {
	return nil, nil
}
func (d *docRemote) RecordSyncOutcome(context.Context, string, domain.SyncState) error {
	return nil
}

func newTestHandler(secret string) (*Handler, *recordingLocal) {
	log := slog.New(slog.DiscardHandler)
	local := &recordingLocal{}
	remote := &docRemote{docs: map[string]domain.OrderDocument{
		"order-o1": {ID: "order-o1", OrderID: "o1", Status: "SHIPPED", UpdatedAt: time.Now().UTC().Format(time.RFC3339)},
	}}
	rec := syncapp.NewReconciler(log, local, remote)
	return NewHandler(log, rec, secret), local
}

func postEvent(t *testing.T, url string, ev domain.ChangeEvent, sign func([]byte) string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(ev)
	req, _ := http.NewRequest(http.MethodPost, url+"/webhooks/mirror", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign != nil {
		req.Header.Set(signatureHeader, sign(body))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func statusChange() domain.ChangeEvent {
	return domain.ChangeEvent{
		Type:          domain.DocTypeOrder,
		ID:            "order-o1",
		Transition:    "update",
		ChangedFields: []string{"status"},
	}
}

func TestStatusChangeApplied(t *testing.T) {
	h, local := newTestHandler("")
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp := postEvent(t, srv.URL, statusChange(), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(local.applied) != 1 || local.applied[0] != "o1:SHIPPED" {
		t.Fatalf("applied = %v", local.applied)
	}
}

func TestIrrelevantEventsAcknowledgedWithoutWrite(t *testing.T) {
	cases := []domain.ChangeEvent{
		{Type: "product", ID: "product-1", Transition: "update", ChangedFields: []string{"status"}},
		{Type: domain.DocTypeOrder, ID: "order-o1", Transition: "create", ChangedFields: []string{"status"}},
		{Type: domain.DocTypeOrder, ID: "order-o1", Transition: "update", ChangedFields: []string{"total"}},
	}
	for i, ev := range cases {
		h, local := newTestHandler("")
		srv := httptest.NewServer(h.Routes())
		resp := postEvent(t, srv.URL, ev, nil)
		resp.Body.Close()
		srv.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("case %d: status = %d, want neutral 200", i, resp.StatusCode)
		}
		if len(local.applied) != 0 {
			t.Fatalf("case %d: local write happened for irrelevant event", i)
		}
	}
}

func TestUnresolvableStatusChangesAcknowledged(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	remote := &docRemote{docs: map[string]domain.OrderDocument{
		"order-ghost": {ID: "order-ghost", OrderID: "ghost", Status: "SHIPPED", UpdatedAt: time.Now().UTC().Format(time.RFC3339)},
	}}
	rec := syncapp.NewReconciler(log, &ghostLocal{}, remote)
	srv := httptest.NewServer(NewHandler(log, rec, "").Routes())
	defer srv.Close()

	// Redelivering either of these can never succeed, so the mirror must
	// get its acknowledgement instead of retrying forever.
	cases := []domain.ChangeEvent{
		{Type: domain.DocTypeOrder, ID: "order-ghost", Transition: "update", ChangedFields: []string{"status"}},
		{Type: domain.DocTypeOrder, ID: "drafts.abc123", Transition: "update", ChangedFields: []string{"status"}},
	}
	for i, ev := range cases {
		resp := postEvent(t, srv.URL, ev, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("case %d: status = %d, want neutral 200", i, resp.StatusCode)
		}
	}
}

func TestSignatureEnforcedWhenConfigured(t *testing.T) {
	h, local := newTestHandler("mirror-secret")
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp := postEvent(t, srv.URL, statusChange(), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unsigned status = %d, want 400", resp.StatusCode)
	}
	if len(local.applied) != 0 {
		t.Fatal("unsigned event reached the reconciler")
	}

	sign := func(body []byte) string {
		mac := hmac.New(sha256.New, []byte("mirror-secret"))
		mac.Write(body)
		return hex.EncodeToString(mac.Sum(nil))
	}
	resp2 := postEvent(t, srv.URL, statusChange(), sign)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("signed status = %d", resp2.StatusCode)
	}
	if len(local.applied) != 1 {
		t.Fatal("signed event not applied")
	}
}

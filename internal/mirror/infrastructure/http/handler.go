package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/reconciler/internal/mirror/domain"
	syncapp "github.com/orderflow/reconciler/internal/sync/application"
)

const (
	signatureHeader = "X-Mirror-Signature"
	maxWebhookBody  = 1 << 20
)

// Handler ingests the content mirror's change webhooks. Only order-document
// updates that touch the status field reach the reconciler; everything else
// is acknowledged and dropped.
type Handler struct {
	log        *slog.Logger
	reconciler *syncapp.Reconciler
	secret     []byte
	tracer     trace.Tracer
}

func NewHandler(log *slog.Logger, reconciler *syncapp.Reconciler, secret string) *Handler {
	h := &Handler{
		log:        log,
		reconciler: reconciler,
		tracer:     otel.Tracer("mirror-http"),
	}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/mirror", h.mirrorWebhook)
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) mirrorWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "MirrorWebhook")
	defer span.End()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if h.secret != nil {
		if !verifyHMAC(h.secret, raw, r.Header.Get(signatureHeader)) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
	} else {
		// Development-mode allowance only; production deployments configure
		// MIRROR_WEBHOOK_SECRET.
		h.log.Warn("mirror webhook accepted without signature verification")
	}

	var ev domain.ChangeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if ev.Type != domain.DocTypeOrder || ev.Transition != "update" || !slices.Contains(ev.ChangedFields, "status") {
		h.ack(w, "skipped")
		return
	}

	// The reconciler re-fetches the canonical document; the event's embedded
	// fields are never applied directly. Events it cannot ever resolve come
	// back as counted stats with a nil error and are acked so the mirror
	// stops redelivering them.
	stats, err := h.reconciler.ApplyRemoteStatusChange(ctx, ev.ID)
	if err != nil {
		h.log.Error("remote status apply failed", "doc_id", ev.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if stats.Updated == 0 {
		h.ack(w, "skipped")
		return
	}
	h.ack(w, "applied")
}

func (h *Handler) ack(w http.ResponseWriter, result string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"result": result})
}

func verifyHMAC(secret, body []byte, header string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

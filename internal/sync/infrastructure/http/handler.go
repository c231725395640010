package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	mirrordomain "github.com/orderflow/reconciler/internal/mirror/domain"
	"github.com/orderflow/reconciler/internal/sync/application"
)

// Handler exposes the batch sync triggers. These are operational endpoints
// invoked by schedulers and admin tooling, not by browser sessions; CORS is
// wide open and access control is the shared token.
type Handler struct {
	log        *slog.Logger
	reconciler *application.Reconciler
	token      string
	tracer     trace.Tracer
}

func NewHandler(log *slog.Logger, reconciler *application.Reconciler, token string) *Handler {
	return &Handler{
		log:        log,
		reconciler: reconciler,
		token:      token,
		tracer:     otel.Tracer("sync-http"),
	}
}

// Register wires the operator-facing sync triggers onto r. The routes are
// CORS-open so a browser-based admin panel can call them cross-origin; the
// OPTIONS routes exist only so the preflight reaches the middleware.
func (h *Handler) Register(r chi.Router) {
	g := r.With(corsOpen)
	g.Post("/sync/export", h.runBatch("export", h.reconciler.ExportOrders))
	g.Post("/sync/import", h.runBatch("import", h.reconciler.ImportOrders))
	g.Options("/sync/export", preflight)
	g.Options("/sync/import", preflight)
}

// preflight never runs; corsOpen answers OPTIONS before the chain gets here.
func preflight(http.ResponseWriter, *http.Request) {}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

type syncResponse struct {
	Success bool                   `json:"success"`
	Stats   mirrordomain.SyncStats `json:"stats"`
	Message string                 `json:"message"`
}

func (h *Handler) runBatch(name string, run func(context.Context) (mirrordomain.SyncStats, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "Sync/"+name)
		defer span.End()

		if !h.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		stats, err := run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			h.log.Error("sync batch failed", "direction", name, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(syncResponse{Success: false, Stats: stats, Message: err.Error()})
			return
		}

		msg := name + " completed"
		if stats.Errors > 0 {
			msg = name + " completed with errors"
		}
		_ = json.NewEncoder(w).Encode(syncResponse{Success: stats.Errors == 0, Stats: stats, Message: msg})
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		h.log.Warn("sync endpoint invoked without a configured token")
		return true
	}
	got := r.Header.Get("X-Sync-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func corsOpen(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Sync-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

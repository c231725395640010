package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/reconciler/internal/order/application"
	"github.com/orderflow/reconciler/internal/order/domain"
	"github.com/orderflow/reconciler/pkg/auth"
)

type Handler struct {
	log      *slog.Logger
	svc      *application.Service
	identity *application.Identity
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, svc *application.Service, identity *application.Identity) *Handler {
	return &Handler{
		log:      log,
		svc:      svc,
		identity: identity,
		tracer:   otel.Tracer("order-http"),
	}
}

// Register wires the customer-facing routes onto r. The caller is expected
// to have the bearer-token middleware already in place.
func (h *Handler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/addresses", h.listAddresses)
	r.Post("/addresses", h.createAddress)
	r.Put("/addresses/{id}", h.updateAddress)
	r.Delete("/addresses/{id}", h.deleteAddress)
	r.Post("/addresses/{id}/default", h.setDefaultAddress)
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

type orderItemResp struct {
	ProductID   string  `json:"productId"`
	VariantID   *string `json:"variantId,omitempty"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       string  `json:"price"`
}

type orderResp struct {
	ID                string          `json:"id"`
	Number            string          `json:"orderNumber"`
	Items             []orderItemResp `json:"items"`
	Total             string          `json:"total"`
	Status            string          `json:"status"`
	ShippingAddressID *string         `json:"shippingAddressId,omitempty"`
	CreatedAt         string          `json:"createdAt"`
	UpdatedAt         string          `json:"updatedAt"`
}

func toOrderResp(o domain.Order) orderResp {
	resp := orderResp{
		ID:                o.ID,
		Number:            o.Number,
		Items:             make([]orderItemResp, 0, len(o.Items)),
		Total:             o.Total.StringFixed(2),
		Status:            string(o.Status),
		ShippingAddressID: o.ShippingAddressID,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         o.UpdatedAt.Format(time.RFC3339),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResp{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price.StringFixed(2),
		})
	}
	return resp
}

type addressReq struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"isDefault"`
}

type addressResp struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"isDefault"`
}

func toAddressResp(a domain.Address) addressResp {
	return addressResp{
		ID:         a.ID,
		FullName:   a.FullName,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
	}
}

// resolveUser maps the bearer claims onto a store user, provisioning on first
// contact so a fresh account sees an empty order list instead of a 404.
func (h *Handler) resolveUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return domain.User{}, false
	}
	u, err := h.identity.Resolve(r.Context(), claims.Subject, claims.Email, claims.Name)
	if err != nil {
		h.log.Error("resolve user failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return domain.User{}, false
	}
	return u, true
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	u, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	orders, err := h.svc.ListOrders(ctx, u.ID)
	if err != nil {
		h.log.Error("list orders failed", "user_id", u.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]orderResp, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	u, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	o, err := h.svc.GetOrder(ctx, chi.URLParam(r, "id"), u.ID)
	if err != nil {
		h.writeError(w, err, "get order failed")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListAddresses")
	defer span.End()

	u, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	addrs, err := h.svc.ListAddresses(ctx, u.ID)
	if err != nil {
		h.log.Error("list addresses failed", "user_id", u.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]addressResp, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, toAddressResp(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateAddress")
	defer span.End()

	u, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req addressReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	a, err := h.svc.CreateAddress(ctx, addressFromReq(req, u.ID, ""))
	if err != nil {
		h.writeError(w, err, "create address failed")
		return
	}
	writeJSON(w, http.StatusCreated, toAddressResp(a))
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateAddress")
	defer span.End()

	u, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req addressReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	a, err := h.svc.UpdateAddress(ctx, addressFromReq(req, u.ID, chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err, "update address failed")
		return
	}
	writeJSON(w, http.StatusOK, toAddressResp(a))
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteAddress")
	defer span.End()

	u, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteAddress(ctx, chi.URLParam(r, "id"), u.ID); err != nil {
		h.writeError(w, err, "delete address failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetDefaultAddress")
	defer span.End()

	u, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.SetDefaultAddress(ctx, u.ID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "set default address failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func addressFromReq(req addressReq, userID, id string) domain.Address {
	return domain.Address{
		ID:         id,
		UserID:     userID,
		FullName:   req.FullName,
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, application.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, application.ErrValidation):
		http.Error(w, "invalid payload", http.StatusBadRequest)
	default:
		h.log.Error(msg, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

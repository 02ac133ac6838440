// Package api exposes the order lifecycle over HTTP/JSON. Handlers decode and
// authenticate requests, delegate to the order service, and map domain errors
// to status codes.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dulceria/mayorista/internal/domain/auth"
	"github.com/dulceria/mayorista/internal/domain/catalog"
	"github.com/dulceria/mayorista/internal/domain/order"
	"github.com/dulceria/mayorista/internal/domain/stock"
)

// Handler serves the order API, delegating business logic to the order
// service.
type Handler struct {
	orders  *order.Service
	apikeys auth.Repository
	pepper  []byte
}

// NewHandler constructs a Handler with the required dependencies. pepper is
// the HMAC key used to hash presented API keys before lookup.
func NewHandler(orders *order.Service, apikeys auth.Repository, pepper []byte) *Handler {
	return &Handler{
		orders:  orders,
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Register mounts all order routes on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.updateStatus)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/payment-proof", h.attachPaymentProof)
	mux.HandleFunc("POST /api/orders/{id}/whatsapp-sent", h.markWhatsAppSent)
}

// errorResponse is the JSON error envelope shared by all endpoints.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps domain errors to HTTP status codes. Anything
// unrecognized is a 500 with the detail kept server-side.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *order.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: valErr.Message,
			Field:   valErr.Field,
		})
		return
	}

	var insufErr *stock.InsufficientError
	if errors.As(err, &insufErr) {
		writeError(w, http.StatusConflict, insufErr.Error())
		return
	}

	var transErr *order.InvalidTransitionError
	if errors.As(err, &transErr) {
		writeError(w, http.StatusConflict, transErr.Error())
		return
	}

	switch {
	case errors.Is(err, order.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "order was modified concurrently, retry with fresh data")
	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, catalog.ErrVariantNotFound):
		writeError(w, http.StatusNotFound, "variant not found")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

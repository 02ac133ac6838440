package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dulceria/mayorista/internal/domain/order"
)

// createOrder handles POST /api/orders: guest or identified customer
// checkout.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req order.CreateOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	o, err := h.orders.Create(r.Context(), req, actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// getOrder handles GET /api/orders/{id}. Staff read any order; customers only
// their own.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if actor.Role == order.RoleCustomer && (actor.ID == "" || o.CreatedBy != actor.ID) {
		// Do not reveal the order's existence to other customers.
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// listOrders handles GET /api/orders with filtering and paging. Staff only.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	f, err := listFilterFromQuery(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	page, err := h.orders.List(r.Context(), f, actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// updateStatus handles PATCH /api/orders/{id}/status. Confirmation carries
// the shipping cost; the remaining happy-path steps advance one state at a
// time. Cancellation has its own endpoint so the mandatory reason cannot be
// bypassed.
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req order.StatusUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	id := r.PathValue("id")
	target := order.Status(req.Status)

	var (
		o   *order.Order
		err error
	)
	switch target {
	case order.StatusCancelled:
		h.writeDomainError(w, r, &order.ValidationError{
			Field:   "status",
			Message: "cancellation must use the cancel endpoint",
		})
		return
	case order.StatusConfirmed:
		o, err = h.orders.Confirm(r.Context(), id, req.ShippingCost, req.AdminNotes, actor)
	default:
		o, err = h.orders.Advance(r.Context(), id, target, req.AdminNotes, actor)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// cancelOrder handles POST /api/orders/{id}/cancel with a mandatory reason.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req order.CancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	o, err := h.orders.Cancel(r.Context(), r.PathValue("id"), req.CancellationReason, actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// attachPaymentProof handles POST /api/orders/{id}/payment-proof.
func (h *Handler) attachPaymentProof(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req order.PaymentProofRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	o, err := h.orders.AttachPaymentProof(r.Context(), r.PathValue("id"), req.PaymentProof, actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// markWhatsAppSent handles POST /api/orders/{id}/whatsapp-sent. Staff only.
func (h *Handler) markWhatsAppSent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	o, err := h.orders.MarkWhatsAppSent(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// listFilterFromQuery parses listing query parameters. Invalid numeric or
// date values surface as field-qualified validation errors.
func listFilterFromQuery(r *http.Request) (order.ListFilter, error) {
	q := r.URL.Query()
	f := order.ListFilter{
		Status:         order.Status(q.Get("status")),
		DeliveryMethod: order.DeliveryMethod(q.Get("deliveryMethod")),
		PaymentMethod:  order.PaymentMethod(q.Get("paymentMethod")),
		CustomerID:     q.Get("customerId"),
		Search:         q.Get("search"),
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, &order.ValidationError{Field: "page", Message: "must be a positive integer"}
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, &order.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		f.Limit = n
	}
	if v := q.Get("startDate"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, &order.ValidationError{Field: "startDate", Message: "must be a YYYY-MM-DD date"}
		}
		f.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, &order.ValidationError{Field: "endDate", Message: "must be a YYYY-MM-DD date"}
		}
		// Inclusive: the whole end day is in range.
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		f.EndDate = &t
	}

	return f, nil
}

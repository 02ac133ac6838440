//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"strconv"
	"testing"
)

const (
	staffAPIKey = "integration-test-key"

	variantGomitas   = "var-gomitas-acidas-1kg"
	variantChocolate = "var-chocolate-leche-caja24"
	variantCaramelos = "var-caramelos-miel-500g"
	variantAlfajores = "var-alfajores-maicena-doc"
)

var orderNumberPattern = regexp.MustCompile(`^PED-\d{8}-\d{6}$`)

func validOrderRequest(items ...orderItemRequest) orderRequest {
	return orderRequest{
		Customer: customerRequest{
			Name:  "Kiosco El Trébol",
			Email: "compras@eltrebol.example",
			Phone: "+5491130000001",
			Address: addressRequest{
				Street: "Av. Rivadavia",
				Number: "1234",
				City:   "Buenos Aires",
			},
		},
		Items:          items,
		DeliveryMethod: "delivery",
		PaymentMethod:  "transfer",
	}
}

// money parses a decimal JSON string for comparison; the serialized scale
// depends on the database column, so exact string matches are too brittle.
func money(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		t.Fatalf("parse money %q: %v", s, err)
	}
	return v
}

func createOrder(t *testing.T, req orderRequest) orderResponse {
	t.Helper()

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func TestCreateOrder_Guest(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 2}))

	if !orderNumberPattern.MatchString(o.OrderNumber) {
		t.Errorf("order number: got %q, want PED-YYYYMMDD-XXXXXX", o.OrderNumber)
	}
	if o.Status != "pending_whatsapp" {
		t.Errorf("status: got %q, want pending_whatsapp", o.Status)
	}
	if o.Version != 1 {
		t.Errorf("version: got %d, want 1", o.Version)
	}
	if o.CreatedBy != "" {
		t.Errorf("createdBy: got %q, want empty for guest", o.CreatedBy)
	}
	// 2 units below the first quantity break: full price.
	if got := money(t, o.Subtotal); got != 2000 {
		t.Errorf("subtotal: got %v, want 2000", got)
	}
	if got := money(t, o.ShippingCost); got != 0 {
		t.Errorf("shippingCost: got %v, want 0 before confirmation", got)
	}
}

func TestCreateOrder_TieredDiscount(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 10}))

	if len(o.Items) != 1 {
		t.Fatalf("items: got %d, want 1", len(o.Items))
	}
	line := o.Items[0]
	// 10 units hit the 10+ break: 850 each, 150 off the 1000 base.
	if got := money(t, line.UnitPrice); got != 1000 {
		t.Errorf("unitPrice: got %v, want 1000", got)
	}
	if got := money(t, line.Discount); got != 150 {
		t.Errorf("discount: got %v, want 150", got)
	}
	if got := money(t, line.LineTotal); got != 8500 {
		t.Errorf("lineTotal: got %v, want 8500", got)
	}
	if got := money(t, o.Total); got != 8500 {
		t.Errorf("total: got %v, want 8500", got)
	}
}

func TestCreateOrder_FixedDiscount(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantChocolate, Quantity: 1}))

	line := o.Items[0]
	// The seeded fixed discount is 400 off within its validity window.
	if got := money(t, line.Discount); got != 400 {
		t.Errorf("discount: got %v, want 400", got)
	}
	if got := money(t, o.Total); got != 4400 {
		t.Errorf("total: got %v, want 4400", got)
	}
}

func TestCreateOrder_Backorder(t *testing.T) {
	// Caramelos have zero stock but allow backorders.
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantCaramelos, Quantity: 10}))

	// 10 units hit the 8% break: 650 - 52 = 598 each.
	if got := money(t, o.Items[0].Discount); got != 52 {
		t.Errorf("discount: got %v, want 52", got)
	}
	if got := money(t, o.Total); got != 5980 {
		t.Errorf("total: got %v, want 5980", got)
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	req := validOrderRequest(orderItemRequest{Variant: variantAlfajores, Quantity: 500})
	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_AllOrNothing(t *testing.T) {
	// One satisfiable line plus one unsatisfiable line must reserve nothing:
	// the same satisfiable quantity must still be available afterwards.
	req := validOrderRequest(
		orderItemRequest{Variant: variantGomitas, Quantity: 1},
		orderItemRequest{Variant: variantAlfajores, Quantity: 500},
	)
	resp := doPost(t, "/api/orders", req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1}))
	if o.Status != "pending_whatsapp" {
		t.Errorf("status: got %q, want pending_whatsapp", o.Status)
	}
}

func TestCreateOrder_UnknownVariant(t *testing.T) {
	req := validOrderRequest(orderItemRequest{Variant: "var-does-not-exist", Quantity: 1})
	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*orderRequest)
		field  string
	}{
		{
			name:   "empty items",
			mutate: func(r *orderRequest) { r.Items = nil },
			field:  "items",
		},
		{
			name:   "zero quantity",
			mutate: func(r *orderRequest) { r.Items[0].Quantity = 0 },
			field:  "items[0].quantity",
		},
		{
			name:   "bad email",
			mutate: func(r *orderRequest) { r.Customer.Email = "not-an-email" },
			field:  "customer.email",
		},
		{
			name:   "bad delivery method",
			mutate: func(r *orderRequest) { r.DeliveryMethod = "teleport" },
			field:  "deliveryMethod",
		},
		{
			name:   "delivery without street",
			mutate: func(r *orderRequest) { r.Customer.Address.Street = "" },
			field:  "customer.address.street",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1})
			tt.mutate(&req)

			resp := doPost(t, "/api/orders", req)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			body := decodeJSON[errorResponse](t, resp)
			if body.Field != tt.field {
				t.Errorf("field: got %q, want %q", body.Field, tt.field)
			}
		})
	}
}

func TestGetOrder_CustomerScoping(t *testing.T) {
	req := validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1})

	resp := doPostAsCustomer(t, "/api/orders", req, "cust-alpha")
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("create order: expected 201, got %d", resp.StatusCode)
	}
	o := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	// The owner sees it.
	own := doGetAsCustomer(t, "/api/orders/"+o.ID, "cust-alpha")
	defer own.Body.Close()
	if own.StatusCode != http.StatusOK {
		t.Errorf("owner get: expected 200, got %d", own.StatusCode)
	}

	// Another customer gets 404, not 403: existence is not revealed.
	other := doGetAsCustomer(t, "/api/orders/"+o.ID, "cust-beta")
	defer other.Body.Close()
	if other.StatusCode != http.StatusNotFound {
		t.Errorf("other customer get: expected 404, got %d", other.StatusCode)
	}

	// Staff see everything.
	staff := doGetWithAuth(t, "/api/orders/"+o.ID, staffAPIKey)
	defer staff.Body.Close()
	if staff.StatusCode != http.StatusOK {
		t.Errorf("staff get: expected 200, got %d", staff.StatusCode)
	}
}

func TestListOrders_StaffOnly(t *testing.T) {
	resp := doGet(t, "/api/orders")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("guest list: expected 403, got %d", resp.StatusCode)
	}

	wrong := doGetWithAuth(t, "/api/orders", "wrong-key")
	wrong.Body.Close()
	if wrong.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalid key list: expected 401, got %d", wrong.StatusCode)
	}

	ok := doGetWithAuth(t, "/api/orders?limit=5", staffAPIKey)
	defer ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("staff list: expected 200, got %d", ok.StatusCode)
	}
	page := decodeJSON[orderPageResponse](t, ok)
	if page.Limit != 5 {
		t.Errorf("limit: got %d, want 5", page.Limit)
	}
	if len(page.Orders) > 5 {
		t.Errorf("orders: got %d, want at most 5", len(page.Orders))
	}
}

func TestOrderLifecycle_HappyPath(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1}))

	confirm := doPatchWithAuth(t, "/api/orders/"+o.ID+"/status",
		map[string]any{"status": "confirmed", "shippingCost": "350"}, staffAPIKey)
	if confirm.StatusCode != http.StatusOK {
		confirm.Body.Close()
		t.Fatalf("confirm: expected 200, got %d", confirm.StatusCode)
	}
	confirmed := decodeJSON[orderResponse](t, confirm)
	confirm.Body.Close()

	if confirmed.Status != "confirmed" {
		t.Fatalf("status: got %q, want confirmed", confirmed.Status)
	}
	if got := money(t, confirmed.ShippingCost); got != 350 {
		t.Errorf("shippingCost: got %v, want 350", got)
	}
	if want := money(t, confirmed.Subtotal) + 350; money(t, confirmed.Total) != want {
		t.Errorf("total: got %v, want %v", money(t, confirmed.Total), want)
	}
	if confirmed.Version != o.Version+1 {
		t.Errorf("version: got %d, want %d", confirmed.Version, o.Version+1)
	}

	for _, status := range []string{"preparing", "shipped", "completed"} {
		resp := doPatchWithAuth(t, "/api/orders/"+o.ID+"/status",
			map[string]any{"status": status}, staffAPIKey)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("advance to %s: expected 200, got %d", status, resp.StatusCode)
		}
		got := decodeJSON[orderResponse](t, resp)
		resp.Body.Close()
		if got.Status != status {
			t.Fatalf("status: got %q, want %q", got.Status, status)
		}
	}
}

func TestOrderLifecycle_SkippingStateRejected(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1}))

	resp := doPatchWithAuth(t, "/api/orders/"+o.ID+"/status",
		map[string]any{"status": "shipped"}, staffAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestOrderLifecycle_StatusEndpointRejectsCancelled(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1}))

	resp := doPatchWithAuth(t, "/api/orders/"+o.ID+"/status",
		map[string]any{"status": "cancelled"}, staffAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOrderLifecycle_GuestCannotConfirm(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1}))

	patch := doRequest(t, http.MethodPatch, "/api/orders/"+o.ID+"/status",
		map[string]any{"status": "confirmed"}, nil)
	defer patch.Body.Close()
	if patch.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", patch.StatusCode)
	}
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	// Alfajores are seeded with 6 units. Taking all of them must block a
	// second order until the first is cancelled.
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantAlfajores, Quantity: 6}))

	blocked := doPost(t, "/api/orders", validOrderRequest(orderItemRequest{Variant: variantAlfajores, Quantity: 1}))
	blocked.Body.Close()
	if blocked.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while stock reserved, got %d", blocked.StatusCode)
	}

	cancel := doPostWithAuth(t, "/api/orders/"+o.ID+"/cancel",
		map[string]any{"cancellationReason": "customer changed their mind"}, staffAPIKey)
	if cancel.StatusCode != http.StatusOK {
		cancel.Body.Close()
		t.Fatalf("cancel: expected 200, got %d", cancel.StatusCode)
	}
	cancelled := decodeJSON[orderResponse](t, cancel)
	cancel.Body.Close()

	if cancelled.Status != "cancelled" {
		t.Fatalf("status: got %q, want cancelled", cancelled.Status)
	}
	if cancelled.CancellationReason == "" {
		t.Error("cancellationReason is empty")
	}

	// Stock is back: the whole seeded quantity is orderable again.
	restored := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantAlfajores, Quantity: 6}))
	undo := doPostWithAuth(t, "/api/orders/"+restored.ID+"/cancel",
		map[string]any{"cancellationReason": "cleanup after lifecycle test"}, staffAPIKey)
	undo.Body.Close()
}

func TestCancelOrder_ReasonRequired(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1}))

	resp := doPostWithAuth(t, "/api/orders/"+o.ID+"/cancel",
		map[string]any{"cancellationReason": ""}, staffAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Field != "cancellationReason" {
		t.Errorf("field: got %q, want cancellationReason", body.Field)
	}
}

func TestWhatsAppSent_StampedOnce(t *testing.T) {
	o := createOrder(t, validOrderRequest(orderItemRequest{Variant: variantGomitas, Quantity: 1}))

	first := doPostWithAuth(t, "/api/orders/"+o.ID+"/whatsapp-sent", nil, staffAPIKey)
	if first.StatusCode != http.StatusOK {
		first.Body.Close()
		t.Fatalf("expected 200, got %d", first.StatusCode)
	}
	stamped := decodeJSON[orderResponse](t, first)
	first.Body.Close()

	if !stamped.WhatsAppSent || stamped.WhatsAppSentAt == "" {
		t.Fatalf("whatsappSentAt not stamped: %+v", stamped)
	}

	// Repeat acknowledgements keep the original timestamp.
	second := doPostWithAuth(t, "/api/orders/"+o.ID+"/whatsapp-sent", nil, staffAPIKey)
	defer second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("repeat stamp: expected 200, got %d", second.StatusCode)
	}
	repeated := decodeJSON[orderResponse](t, second)
	if repeated.WhatsAppSentAt != stamped.WhatsAppSentAt {
		t.Errorf("whatsappSentAt changed on repeat: %q vs %q", repeated.WhatsAppSentAt, stamped.WhatsAppSentAt)
	}
}

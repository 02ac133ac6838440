package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseRequest() CreateOrderRequest {
	return CreateOrderRequest{
		Customer: CustomerInput{
			Name:  "Maria Lopez",
			Email: "maria@example.com",
			Phone: "+573001234567",
			Address: AddressInput{
				Street: "Calle 10",
				Number: "42-18",
				City:   "Medellin",
			},
		},
		Items:          []ItemInput{{Variant: "v1", Quantity: 3}},
		DeliveryMethod: "delivery",
		PaymentMethod:  "transfer",
	}
}

func requireViolation(t *testing.T, err error, field string) {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, field, verr.Field)
}

func TestValidateCreate_OK(t *testing.T) {
	v := NewValidator()
	req := baseRequest()
	require.NoError(t, v.ValidateCreate(&req))
}

func TestValidateCreate_Name(t *testing.T) {
	v := NewValidator()

	req := baseRequest()
	req.Customer.Name = "M"
	requireViolation(t, v.ValidateCreate(&req), "customer.name")

	req.Customer.Name = ""
	requireViolation(t, v.ValidateCreate(&req), "customer.name")
}

func TestValidateCreate_Email(t *testing.T) {
	v := NewValidator()
	req := baseRequest()
	req.Customer.Email = "not-an-email"
	requireViolation(t, v.ValidateCreate(&req), "customer.email")
}

func TestValidateCreate_Phone(t *testing.T) {
	v := NewValidator()

	valid := []string{"+573001234567", "573001234567", "+12125551234"}
	for _, phone := range valid {
		req := baseRequest()
		req.Customer.Phone = phone
		assert.NoError(t, v.ValidateCreate(&req), "phone %q", phone)
	}

	invalid := []string{"", "abc", "+0123456", "12-34-56", "+1", "123"}
	for _, phone := range invalid {
		req := baseRequest()
		req.Customer.Phone = phone
		requireViolation(t, v.ValidateCreate(&req), "customer.phone")
	}
}

func TestValidateCreate_ItemBounds(t *testing.T) {
	v := NewValidator()

	req := baseRequest()
	req.Items = nil
	requireViolation(t, v.ValidateCreate(&req), "items")

	req = baseRequest()
	req.Items = make([]ItemInput, 51)
	for i := range req.Items {
		req.Items[i] = ItemInput{Variant: "v1", Quantity: 1}
	}
	requireViolation(t, v.ValidateCreate(&req), "items")

	req = baseRequest()
	req.Items[0].Quantity = 0
	requireViolation(t, v.ValidateCreate(&req), "items[0].quantity")

	req = baseRequest()
	req.Items[0].Quantity = 1000
	requireViolation(t, v.ValidateCreate(&req), "items[0].quantity")

	req = baseRequest()
	req.Items[0].Variant = ""
	requireViolation(t, v.ValidateCreate(&req), "items[0].variant")
}

func TestValidateCreate_RepeatedVariant(t *testing.T) {
	v := NewValidator()

	req := baseRequest()
	req.Items = []ItemInput{
		{Variant: "v1", Quantity: 3},
		{Variant: "v1", Quantity: 3},
	}
	requireViolation(t, v.ValidateCreate(&req), "items")

	// Distinct variants are fine.
	req.Items[1].Variant = "v2"
	require.NoError(t, v.ValidateCreate(&req))
}

func TestValidateCreate_Enums(t *testing.T) {
	v := NewValidator()

	req := baseRequest()
	req.DeliveryMethod = "drone"
	requireViolation(t, v.ValidateCreate(&req), "deliveryMethod")

	req = baseRequest()
	req.PaymentMethod = "crypto"
	requireViolation(t, v.ValidateCreate(&req), "paymentMethod")
}

func TestValidateCreate_AddressRequiredOnlyForDelivery(t *testing.T) {
	v := NewValidator()

	req := baseRequest()
	req.Customer.Address = AddressInput{}
	requireViolation(t, v.ValidateCreate(&req), "customer.address.street")

	req.DeliveryMethod = "pickup"
	require.NoError(t, v.ValidateCreate(&req))
}

func TestValidateCreate_NotesCap(t *testing.T) {
	v := NewValidator()

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'x'
	}

	req := baseRequest()
	req.DeliveryNotes = string(long)
	requireViolation(t, v.ValidateCreate(&req), "deliveryNotes")

	req = baseRequest()
	req.CustomerNotes = string(long)
	requireViolation(t, v.ValidateCreate(&req), "customerNotes")
}

func TestValidateCancel(t *testing.T) {
	v := NewValidator()

	requireViolation(t, v.ValidateCancel(&CancelRequest{CancellationReason: "too short"}), "cancellationReason")
	require.NoError(t, v.ValidateCancel(&CancelRequest{CancellationReason: "exactly 10"}))
}

func TestValidateStatusUpdate(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.ValidateStatusUpdate(&StatusUpdateRequest{Status: "confirmed"}))
	requireViolation(t, v.ValidateStatusUpdate(&StatusUpdateRequest{Status: "delivered"}), "status")
	requireViolation(t, v.ValidateStatusUpdate(&StatusUpdateRequest{}), "status")
	requireViolation(t, v.ValidateStatusUpdate(&StatusUpdateRequest{
		Status:       "confirmed",
		ShippingCost: decimal.NewFromInt(-1),
	}), "shippingCost")
}

func TestValidateListFilter(t *testing.T) {
	v := NewValidator()

	f := ListFilter{Page: 1, Limit: 20}
	require.NoError(t, v.ValidateListFilter(&f))

	f = ListFilter{Page: 0, Limit: 20}
	requireViolation(t, v.ValidateListFilter(&f), "page")

	f = ListFilter{Page: 1, Limit: 0}
	requireViolation(t, v.ValidateListFilter(&f), "limit")

	f = ListFilter{Page: 1, Limit: 20, Status: "bogus"}
	requireViolation(t, v.ValidateListFilter(&f), "status")
}

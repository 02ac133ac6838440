package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors shared across order operations.
var (
	// ErrNotFound is returned when no order exists for the given id.
	ErrNotFound = errors.New("order not found")
	// ErrConcurrentModification is an optimistic-lock conflict: the order
	// changed between read and write. Safe to retry once with fresh data.
	ErrConcurrentModification = errors.New("order modified concurrently")
	// ErrForbidden is returned when the actor's role does not permit the
	// attempted action.
	ErrForbidden = errors.New("forbidden")
)

// DeliveryMethod enumerates how an order reaches the customer.
type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "delivery"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

// PaymentMethod enumerates the accepted payment options.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash-on-delivery"
	PaymentTransfer       PaymentMethod = "transfer"
	PaymentCard           PaymentMethod = "card"
)

// Address is the customer's shipping address snapshot. Neighborhood and
// Reference are optional.
type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	City         string `json:"city"`
	Neighborhood string `json:"neighborhood,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

// Customer is the customer data snapshot captured at checkout. Later profile
// edits never alter historical orders.
type Customer struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

// Item is a single priced order line. Name, Attributes, and UnitPrice are an
// immutable snapshot of the variant at purchase time.
type Item struct {
	VariantID  string            `json:"variantId"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Quantity   int               `json:"quantity"`
	UnitPrice  decimal.Decimal   `json:"unitPrice"`
	Discount   decimal.Decimal   `json:"discount"`
	LineTotal  decimal.Decimal   `json:"lineTotal"`
}

// Order is the persisted aggregate: validated customer data, priced line
// items, computed totals, and current lifecycle state. Version is the
// optimistic concurrency marker; every successful write increments it.
type Order struct {
	ID                 string          `json:"id"`
	OrderNumber        string          `json:"orderNumber"`
	Customer           Customer        `json:"customer"`
	Items              []Item          `json:"items"`
	DeliveryMethod     DeliveryMethod  `json:"deliveryMethod"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	ShippingCost       decimal.Decimal `json:"shippingCost"`
	Total              decimal.Decimal `json:"total"`
	Status             Status          `json:"status"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	AdminNotes         string          `json:"adminNotes,omitempty"`
	DeliveryNotes      string          `json:"deliveryNotes,omitempty"`
	CustomerNotes      string          `json:"customerNotes,omitempty"`
	PaymentProof       string          `json:"paymentProof,omitempty"`
	WhatsAppSent       bool            `json:"whatsappSent"`
	WhatsAppSentAt     *time.Time      `json:"whatsappSentAt,omitempty"`
	ConfirmedAt        *time.Time      `json:"confirmedAt,omitempty"`
	CompletedAt        *time.Time      `json:"completedAt,omitempty"`
	CancelledAt        *time.Time      `json:"cancelledAt,omitempty"`
	CreatedBy          string          `json:"createdBy,omitempty"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// recomputeTotal keeps the total == subtotal + shippingCost invariant after
// any change to either component.
func (o *Order) recomputeTotal() {
	o.Total = o.Subtotal.Add(o.ShippingCost)
}

// ListFilter narrows and pages an order listing.
type ListFilter struct {
	Page           int
	Limit          int
	Status         Status
	DeliveryMethod DeliveryMethod
	PaymentMethod  PaymentMethod
	CustomerID     string
	StartDate      *time.Time
	EndDate        *time.Time
	Search         string
}

// Page is one page of an order listing.
type Page struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}

// Repository defines persistence operations for orders. Update must perform
// an optimistic write: it succeeds only when the stored version equals
// o.Version, incrementing it, and returns ErrConcurrentModification
// otherwise.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, f ListFilter) (*Page, error)
}

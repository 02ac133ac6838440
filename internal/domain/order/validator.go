package order

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// AddressInput is the inbound shipping address of a checkout request.
type AddressInput struct {
	Street       string `json:"street" validate:"max=200"`
	Number       string `json:"number" validate:"max=20"`
	City         string `json:"city" validate:"max=100"`
	Neighborhood string `json:"neighborhood" validate:"max=100"`
	Reference    string `json:"reference" validate:"max=200"`
}

// CustomerInput is the inbound customer block of a checkout request.
type CustomerInput struct {
	Name    string       `json:"name" validate:"required,min=2,max=120"`
	Email   string       `json:"email" validate:"required,email"`
	Phone   string       `json:"phone" validate:"required,e164like"`
	Address AddressInput `json:"address"`
}

// ItemInput is one requested line of a checkout request.
type ItemInput struct {
	Variant  string `json:"variant" validate:"required,min=1,max=64"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=999"`
}

// CreateOrderRequest is the explicit, serializable cart submitted at
// checkout. The server never trusts client-computed totals; every line is
// re-priced by the pricing engine.
type CreateOrderRequest struct {
	Customer       CustomerInput `json:"customer" validate:"required"`
	Items          []ItemInput   `json:"items" validate:"required,min=1,max=50,unique=Variant,dive"`
	DeliveryMethod string        `json:"deliveryMethod" validate:"required,oneof=delivery pickup"`
	PaymentMethod  string        `json:"paymentMethod" validate:"required,oneof=cash-on-delivery transfer card"`
	DeliveryNotes  string        `json:"deliveryNotes" validate:"max=500"`
	CustomerNotes  string        `json:"customerNotes" validate:"max=500"`
}

// CancelRequest carries the mandatory cancellation reason.
type CancelRequest struct {
	CancellationReason string `json:"cancellationReason" validate:"required,min=10,max=500"`
}

// StatusUpdateRequest moves an order along the lifecycle. ShippingCost is
// only honoured by the confirm transition.
type StatusUpdateRequest struct {
	Status       string          `json:"status" validate:"required"`
	AdminNotes   string          `json:"adminNotes" validate:"max=500"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
}

// PaymentProofRequest attaches a proof-of-payment URL to an order.
type PaymentProofRequest struct {
	PaymentProof string `json:"paymentProof" validate:"required,url,max=500"`
}

// ValidationError is a field-path-qualified, client-correctable rejection.
// The whole request is rejected on the first structural violation; the
// engine never partially validates and partially proceeds.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// E.164-like: optional +, leading non-zero digit, 7 to 15 digits total.
var phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)

// Validator performs structural and semantic validation of inbound order
// requests before any pricing or stock work begins.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator with the custom phone rule, json-tag field
// names, and the delivery-address cross-field rule registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("e164like", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(CreateOrderRequest)
		if req.DeliveryMethod != string(DeliveryMethodDelivery) {
			return
		}
		addr := req.Customer.Address
		if addr.Street == "" {
			sl.ReportError(addr.Street, "customer.address.street", "Street", "required_for_delivery", "")
		}
		if addr.Number == "" {
			sl.ReportError(addr.Number, "customer.address.number", "Number", "required_for_delivery", "")
		}
		if addr.City == "" {
			sl.ReportError(addr.City, "customer.address.city", "City", "required_for_delivery", "")
		}
	}, CreateOrderRequest{})

	return &Validator{v: v}
}

// ValidateCreate checks a checkout request, returning a *ValidationError for
// the first violation.
func (val *Validator) ValidateCreate(req *CreateOrderRequest) error {
	return val.firstViolation(val.v.Struct(req))
}

// ValidateCancel checks a cancellation request.
func (val *Validator) ValidateCancel(req *CancelRequest) error {
	return val.firstViolation(val.v.Struct(req))
}

// ValidateStatusUpdate checks a status update request, including that the
// target status is one of the known lifecycle values.
func (val *Validator) ValidateStatusUpdate(req *StatusUpdateRequest) error {
	if err := val.firstViolation(val.v.Struct(req)); err != nil {
		return err
	}
	if !Status(req.Status).Valid() {
		return &ValidationError{Field: "status", Message: "unknown order status"}
	}
	if req.ShippingCost.IsNegative() {
		return &ValidationError{Field: "shippingCost", Message: "must not be negative"}
	}
	return nil
}

// ValidatePaymentProof checks a payment proof attachment request.
func (val *Validator) ValidatePaymentProof(req *PaymentProofRequest) error {
	return val.firstViolation(val.v.Struct(req))
}

// ValidateListFilter normalizes and checks listing parameters.
func (val *Validator) ValidateListFilter(f *ListFilter) error {
	if f.Page < 1 {
		return &ValidationError{Field: "page", Message: "must be a positive integer"}
	}
	if f.Limit < 1 || f.Limit > 100 {
		return &ValidationError{Field: "limit", Message: "must be between 1 and 100"}
	}
	if f.Status != "" && !f.Status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown order status"}
	}
	if len(f.Search) > 100 {
		return &ValidationError{Field: "search", Message: "must be at most 100 characters"}
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return &ValidationError{Field: "endDate", Message: "must not be before startDate"}
	}
	return nil
}

// firstViolation converts the first validator.v10 violation into a
// field-path-qualified *ValidationError.
func (val *Validator) firstViolation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "request", Message: "malformed request"}
	}
	fe := verrs[0]
	return &ValidationError{
		Field:   fieldPath(fe.Namespace()),
		Message: violationMessage(fe),
	}
}

// fieldPath strips the root struct name from the namespace, leaving the
// json-tagged path ("customer.address.city").
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_for_delivery":
		return "is required when deliveryMethod is delivery"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "unique":
		return "must not repeat a variant; merge duplicate lines into one"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "e164like":
		return "must be a valid phone number"
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

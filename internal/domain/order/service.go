package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dulceria/mayorista/internal/domain/audit"
	"github.com/dulceria/mayorista/internal/domain/catalog"
	"github.com/dulceria/mayorista/internal/domain/stock"
)

// Service drives the order lifecycle: checkout pricing and reservation,
// role-gated status transitions, and exactly-once stock restoration on
// cancellation.
type Service struct {
	variants  catalog.Repository
	ledger    *stock.Ledger
	orders    Repository
	recorder  audit.Recorder
	validator *Validator
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	variants catalog.Repository,
	ledger *stock.Ledger,
	orders Repository,
	recorder audit.Recorder,
) *Service {
	return &Service{
		variants:  variants,
		ledger:    ledger,
		orders:    orders,
		recorder:  recorder,
		validator: NewValidator(),
	}
}

// Create validates the checkout request, prices every line, atomically
// reserves stock for all lines, and persists the order in its initial
// pending_whatsapp state. Validation and pricing run before any stock
// mutation, so their failures never leave partial state.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, actor Actor) (*Order, error) {
	if !Allowed(actor.Role, ActionCreate) {
		return nil, ErrForbidden
	}
	if err := s.validator.ValidateCreate(&req); err != nil {
		return nil, err
	}

	// Batch fetch all variants in one query.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.Variant
	}
	fetched, err := s.variants.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}
	byID := make(map[string]*catalog.Variant, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	now := time.Now().UTC()
	items := make([]Item, len(req.Items))
	lines := make([]stock.Line, len(req.Items))
	subtotal := decimal.Zero

	for i, reqItem := range req.Items {
		v, ok := byID[reqItem.Variant]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrVariantNotFound, "variant %s", reqItem.Variant)
		}

		lp, err := catalog.PriceLine(v, reqItem.Quantity, now)
		if err != nil {
			return nil, errors.Wrapf(err, "price variant %s", v.ID)
		}

		items[i] = Item{
			VariantID:  v.ID,
			Name:       v.Name,
			Attributes: v.Attributes,
			Quantity:   reqItem.Quantity,
			UnitPrice:  lp.UnitPrice,
			Discount:   lp.Discount,
			LineTotal:  lp.LineTotal,
		}
		lines[i] = stock.Line{VariantID: v.ID, Quantity: reqItem.Quantity}
		subtotal = subtotal.Add(lp.LineTotal)
	}

	// All-or-nothing reservation. An insufficient line surfaces as a business
	// rejection with nothing decremented.
	if err := s.ledger.ReserveAll(ctx, lines); err != nil {
		return nil, err
	}

	o := &Order{
		ID:             uuid.New().String(),
		OrderNumber:    newOrderNumber(now),
		Customer:       customerFromInput(req.Customer),
		Items:          items,
		DeliveryMethod: DeliveryMethod(req.DeliveryMethod),
		PaymentMethod:  PaymentMethod(req.PaymentMethod),
		Subtotal:       subtotal,
		ShippingCost:   decimal.Zero,
		Status:         StatusPendingWhatsApp,
		DeliveryNotes:  req.DeliveryNotes,
		CustomerNotes:  req.CustomerNotes,
		CreatedBy:      actor.ID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.recomputeTotal()

	if err := s.orders.Create(ctx, o); err != nil {
		// Compensate the reservation so a failed persist leaves no partial
		// state behind.
		if restoreErr := s.ledger.RestoreAll(ctx, lines); restoreErr != nil {
			zctx.From(ctx).Error("compensating stock restore failed",
				zap.String("order_number", o.OrderNumber), zap.Error(restoreErr))
		}
		return nil, errors.Wrap(err, "create order")
	}

	s.record(ctx, actor, ActionCreate, o.ID, nil, o)
	return o, nil
}

// Confirm moves a pending_whatsapp order to confirmed, setting the
// staff-entered shipping cost, recomputing the total, and stamping
// ConfirmedAt.
func (s *Service) Confirm(ctx context.Context, id string, shippingCost decimal.Decimal, notes string, actor Actor) (*Order, error) {
	if !Allowed(actor.Role, ActionConfirm) {
		return nil, ErrForbidden
	}
	if shippingCost.IsNegative() {
		return nil, &ValidationError{Field: "shippingCost", Message: "must not be negative"}
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(o.Status, StatusConfirmed); err != nil {
		return nil, err
	}

	before := *o
	now := time.Now().UTC()
	o.Status = StatusConfirmed
	o.ShippingCost = shippingCost
	o.recomputeTotal()
	o.ConfirmedAt = &now
	o.UpdatedAt = now
	appendNotes(o, notes)

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	s.record(ctx, actor, ActionConfirm, o.ID, &before, o)
	return o, nil
}

// Advance moves a confirmed order forward exactly one step along the happy
// path (confirmed → preparing → shipped → completed). Skipping states is
// rejected.
func (s *Service) Advance(ctx context.Context, id string, target Status, notes string, actor Actor) (*Order, error) {
	if !Allowed(actor.Role, ActionAdvance) {
		return nil, ErrForbidden
	}
	if !target.Valid() {
		return nil, &ValidationError{Field: "status", Message: "unknown order status"}
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if target == StatusConfirmed {
		// Leaving pending_whatsapp goes through Confirm, which sets the
		// shipping cost and stamps ConfirmedAt.
		return nil, &InvalidTransitionError{From: o.Status, To: target}
	}
	if err := checkTransition(o.Status, target); err != nil {
		return nil, err
	}

	before := *o
	now := time.Now().UTC()
	o.Status = target
	if target == StatusCompleted {
		o.CompletedAt = &now
	}
	o.UpdatedAt = now
	appendNotes(o, notes)

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	s.record(ctx, actor, ActionAdvance, o.ID, &before, o)
	return o, nil
}

// Cancel cancels an order and restores its reserved stock exactly once.
// Staff may cancel from pending_whatsapp, confirmed, or preparing; the
// originating customer only from pending_whatsapp. The stock restore is
// gated on the optimistic status write succeeding, so a cancellation raced
// from two callers never double-credits stock.
func (s *Service) Cancel(ctx context.Context, id, reason string, actor Actor) (*Order, error) {
	if !Allowed(actor.Role, ActionCancel) {
		return nil, ErrForbidden
	}
	if err := s.validator.ValidateCancel(&CancelRequest{CancellationReason: reason}); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == RoleCustomer {
		if o.CreatedBy == "" || o.CreatedBy != actor.ID {
			return nil, ErrForbidden
		}
		if o.Status != StatusPendingWhatsApp {
			return nil, ErrForbidden
		}
	}
	if err := checkCancel(o.Status); err != nil {
		return nil, err
	}

	before := *o
	now := time.Now().UTC()
	o.Status = StatusCancelled
	o.CancellationReason = reason
	o.CancelledAt = &now
	o.UpdatedAt = now

	// The version-checked write is the idempotence gate: only the caller
	// whose update lands restores stock.
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	lines := make([]stock.Line, len(o.Items))
	for i, item := range o.Items {
		lines[i] = stock.Line{VariantID: item.VariantID, Quantity: item.Quantity}
	}
	if err := s.ledger.RestoreAll(ctx, lines); err != nil {
		zctx.From(ctx).Error("stock restore failed for cancelled order",
			zap.String("order_number", o.OrderNumber), zap.Error(err))
		return nil, errors.Wrap(err, "restore stock")
	}

	s.record(ctx, actor, ActionCancel, o.ID, &before, o)
	return o, nil
}

// MarkWhatsAppSent records that the outbound notification was acknowledged.
// It is a side-channel signal and does not change the order status.
func (s *Service) MarkWhatsAppSent(ctx context.Context, id string, actor Actor) (*Order, error) {
	if !Allowed(actor.Role, ActionMarkNotified) {
		return nil, ErrForbidden
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.WhatsAppSent {
		// Already acknowledged; keep the original timestamp.
		return o, nil
	}

	before := *o
	now := time.Now().UTC()
	o.WhatsAppSent = true
	o.WhatsAppSentAt = &now
	o.UpdatedAt = now

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	s.record(ctx, actor, ActionMarkNotified, o.ID, &before, o)
	return o, nil
}

// AttachPaymentProof stores a proof-of-payment URL on the order.
func (s *Service) AttachPaymentProof(ctx context.Context, id, proofURL string, actor Actor) (*Order, error) {
	if !Allowed(actor.Role, ActionAttachProof) {
		return nil, ErrForbidden
	}
	if err := s.validator.ValidatePaymentProof(&PaymentProofRequest{PaymentProof: proofURL}); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == RoleCustomer && (o.CreatedBy == "" || o.CreatedBy != actor.ID) {
		return nil, ErrForbidden
	}

	before := *o
	o.PaymentProof = proofURL
	o.UpdatedAt = time.Now().UTC()

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	s.record(ctx, actor, ActionAttachProof, o.ID, &before, o)
	return o, nil
}

// Get returns a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// List returns a filtered, paginated page of orders. Staff only.
func (s *Service) List(ctx context.Context, f ListFilter, actor Actor) (*Page, error) {
	if !Allowed(actor.Role, ActionList) {
		return nil, ErrForbidden
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = 20
	}
	if err := s.validator.ValidateListFilter(&f); err != nil {
		return nil, err
	}
	return s.orders.List(ctx, f)
}

// record sends a before/after snapshot to the audit collaborator. Audit
// failures are logged, never propagated into the mutation result.
func (s *Service) record(ctx context.Context, actor Actor, action Action, orderID string, before, after *Order) {
	actorID := actor.ID
	if actorID == "" {
		actorID = "guest"
	}
	entry := audit.Entry{
		Actor:      fmt.Sprintf("%s:%s", actor.Role, actorID),
		Action:     string(action),
		EntityType: "order",
		EntityID:   orderID,
		At:         time.Now().UTC(),
	}
	if before != nil {
		entry.Before = before
	}
	if after != nil {
		entry.After = after
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		zctx.From(ctx).Warn("audit record failed",
			zap.String("action", string(action)),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

// appendNotes merges a transition's notes into the order's admin notes.
func appendNotes(o *Order, notes string) {
	if notes == "" {
		return
	}
	if o.AdminNotes == "" {
		o.AdminNotes = notes
		return
	}
	o.AdminNotes = o.AdminNotes + "\n" + notes
}

// customerFromInput snapshots the validated customer input into the order.
func customerFromInput(in CustomerInput) Customer {
	return Customer{
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
		Address: Address{
			Street:       in.Address.Street,
			Number:       in.Address.Number,
			City:         in.Address.City,
			Neighborhood: in.Address.Neighborhood,
			Reference:    in.Address.Reference,
		},
	}
}

// newOrderNumber generates the human-readable order number, e.g.
// PED-20260828-9F3A2C.
func newOrderNumber(at time.Time) string {
	suffix := uuid.New().String()
	return fmt.Sprintf("PED-%s-%s", at.Format("20060102"), strings.ToUpper(suffix[:6]))
}

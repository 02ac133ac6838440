package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dulceria/mayorista/internal/domain/order"
)

const (
	orderColumns = `id, order_number, customer, items, delivery_method, payment_method,
		subtotal, shipping_cost, total, status, cancellation_reason, admin_notes,
		delivery_notes, customer_notes, payment_proof, whatsapp_sent, whatsapp_sent_at,
		confirmed_at, completed_at, cancelled_at, created_by, version, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	// The version predicate is the optimistic lock: a stale writer matches
	// zero rows instead of clobbering a concurrent update.
	updateOrderSQL = `UPDATE orders SET
		customer = $2, items = $3, delivery_method = $4, payment_method = $5,
		subtotal = $6, shipping_cost = $7, total = $8, status = $9,
		cancellation_reason = $10, admin_notes = $11, delivery_notes = $12,
		customer_notes = $13, payment_proof = $14, whatsapp_sent = $15,
		whatsapp_sent_at = $16, confirmed_at = $17, completed_at = $18,
		cancelled_at = $19, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $20
		RETURNING version, updated_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Customer
// and items are stored as JSONB snapshots; list filters that reach inside
// them use JSON path operators.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order at version 1. The customer and items snapshots
// are serialized to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	customerJSON, itemsJSON, err := marshalSnapshots(o)
	if err != nil {
		return err
	}

	o.Version = 1
	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, customerJSON, itemsJSON, o.DeliveryMethod, o.PaymentMethod,
		o.Subtotal, o.ShippingCost, o.Total, o.Status, nullable(o.CancellationReason),
		nullable(o.AdminNotes), nullable(o.DeliveryNotes), nullable(o.CustomerNotes),
		nullable(o.PaymentProof), o.WhatsAppSent, o.WhatsAppSentAt,
		o.ConfirmedAt, o.CompletedAt, o.CancelledAt, nullable(o.CreatedBy),
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// Update writes the order back, succeeding only when the stored version still
// equals o.Version. On success o.Version and o.UpdatedAt reflect the stored
// row.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	customerJSON, itemsJSON, err := marshalSnapshots(o)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, updateOrderSQL,
		o.ID, customerJSON, itemsJSON, o.DeliveryMethod, o.PaymentMethod,
		o.Subtotal, o.ShippingCost, o.Total, o.Status, nullable(o.CancellationReason),
		nullable(o.AdminNotes), nullable(o.DeliveryNotes), nullable(o.CustomerNotes),
		nullable(o.PaymentProof), o.WhatsAppSent, o.WhatsAppSentAt,
		o.ConfirmedAt, o.CompletedAt, o.CancelledAt, o.Version,
	).Scan(&o.Version, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the order vanished or the version moved; tell them apart
			// so callers can surface the right failure.
			var exists bool
			if probeErr := r.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID,
			).Scan(&exists); probeErr != nil {
				return fmt.Errorf("updating order %q: %w", o.ID, probeErr)
			}
			if !exists {
				return order.ErrNotFound
			}
			return order.ErrConcurrentModification
		}
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	return nil
}

// List returns one page of orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) (*order.Page, error) {
	where, args := buildOrderFilter(f)

	var total int
	countSQL := `SELECT count(*) FROM orders` + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	pageSQL := fmt.Sprintf(`SELECT `+orderColumns+` FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.pool.Query(ctx, pageSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	return &order.Page{
		Orders: list,
		Total:  total,
		Page:   f.Page,
		Limit:  f.Limit,
	}, nil
}

// buildOrderFilter turns the set filter fields into a WHERE clause with
// positional args.
func buildOrderFilter(f order.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DeliveryMethod != "" {
		add("delivery_method = $%d", f.DeliveryMethod)
	}
	if f.PaymentMethod != "" {
		add("payment_method = $%d", f.PaymentMethod)
	}
	if f.CustomerID != "" {
		add("created_by = $%d", f.CustomerID)
	}
	if f.StartDate != nil {
		add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= $%d", *f.EndDate)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(order_number ILIKE $%d OR customer->>'name' ILIKE $%d OR customer->>'email' ILIKE $%d)",
			n, n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func marshalSnapshots(o *order.Order) ([]byte, []byte, error) {
	customerJSON, err := json.Marshal(o.Customer)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling order customer: %w", err)
	}
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling order items: %w", err)
	}
	return customerJSON, itemsJSON, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                  order.Order
		customerJSON       []byte
		itemsJSON          []byte
		cancellationReason *string
		adminNotes         *string
		deliveryNotes      *string
		customerNotes      *string
		paymentProof       *string
		createdBy          *string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &customerJSON, &itemsJSON, &o.DeliveryMethod, &o.PaymentMethod,
		&o.Subtotal, &o.ShippingCost, &o.Total, &o.Status, &cancellationReason,
		&adminNotes, &deliveryNotes, &customerNotes, &paymentProof,
		&o.WhatsAppSent, &o.WhatsAppSentAt, &o.ConfirmedAt, &o.CompletedAt,
		&o.CancelledAt, &createdBy, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(customerJSON, &o.Customer); err != nil {
		return o, fmt.Errorf("unmarshaling order customer: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.CancellationReason = deref(cancellationReason)
	o.AdminNotes = deref(adminNotes)
	o.DeliveryNotes = deref(deliveryNotes)
	o.CustomerNotes = deref(customerNotes)
	o.PaymentProof = deref(paymentProof)
	o.CreatedBy = deref(createdBy)
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

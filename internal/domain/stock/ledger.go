// Package stock owns per-variant available-quantity state. All stock
// mutations in the system go through the Ledger: atomic all-or-nothing
// reservation at order creation and restoration on cancellation.
package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Line pairs a variant with the quantity to reserve or restore.
type Line struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// Availability classifies the result of an availability check.
type Availability int

const (
	// Available means the variant has enough stock for the requested quantity.
	Available Availability = iota
	// Insufficient means the variant cannot cover the requested quantity.
	Insufficient
	// BackorderAllowed means stock is short but the variant permits selling
	// below zero.
	BackorderAllowed
)

// InsufficientError is a business rejection: the caller must surface it to
// the buyer and re-quote with current stock, never retry it blindly.
type InsufficientError struct {
	VariantID string
	Available int
	Requested int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: %d available, %d requested",
		e.VariantID, e.Available, e.Requested)
}

// transient marks storage errors that are safe to retry with a fresh read.
type transient interface {
	Transient() bool
}

// TransientError wraps an infrastructure failure that may succeed on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Transient() bool { return true }

// IsTransient reports whether err is a retryable infrastructure failure as
// opposed to a business rejection.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t) && t.Transient()
}

// Store is the storage-level contract the Ledger drives. ReserveLines must be
// all-or-nothing across the given lines, with the per-line check+decrement
// performed as one indivisible operation (a conditional UPDATE, or an
// equivalent compare-and-swap under a lock).
type Store interface {
	ReserveLines(ctx context.Context, lines []Line) error
	RestoreLines(ctx context.Context, lines []Line) error
	StockOf(ctx context.Context, variantID string) (stock int, allowBackorder bool, err error)
}

// maxAttempts bounds retries of transient storage failures. Each retry
// re-runs the conditional against fresh state rather than replaying a stale
// write.
const maxAttempts = 3

// Ledger exposes the stock operations used by order creation and
// cancellation.
type Ledger struct {
	store Store
}

// NewLedger creates a Ledger over the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// CheckAvailability classifies whether quantity units of the variant can be
// sold right now.
func (l *Ledger) CheckAvailability(ctx context.Context, variantID string, quantity int) (Availability, int, error) {
	current, allowBackorder, err := l.store.StockOf(ctx, variantID)
	if err != nil {
		return Insufficient, 0, errors.Wrap(err, "read stock")
	}
	if current >= quantity {
		return Available, current, nil
	}
	if allowBackorder {
		return BackorderAllowed, current, nil
	}
	return Insufficient, current, nil
}

// ReserveAll decrements stock for every line, or for none of them. An
// *InsufficientError identifies the first line that could not be covered.
func (l *Ledger) ReserveAll(ctx context.Context, lines []Line) error {
	return l.withRetry(ctx, func() error {
		return l.store.ReserveLines(ctx, lines)
	})
}

// RestoreAll reverses a prior ReserveAll. Callers gate it on the order's
// status transition so a cancellation retried concurrently never
// double-credits stock.
func (l *Ledger) RestoreAll(ctx context.Context, lines []Line) error {
	return l.withRetry(ctx, func() error {
		return l.store.RestoreLines(ctx, lines)
	})
}

// withRetry re-runs op on transient storage failures, up to maxAttempts.
// Business rejections and fatal errors surface immediately.
func (l *Ledger) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return errors.Wrapf(lastErr, "stock operation failed after %d attempts", maxAttempts)
}

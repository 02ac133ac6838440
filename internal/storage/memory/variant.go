// Package memory provides mutex-guarded in-memory implementations of the
// domain storage interfaces. They back the unit tests, including the stock
// contention tests, with the same conditional check+decrement semantics as
// the PostgreSQL repositories.
package memory

import (
	"context"
	"sync"

	"github.com/dulceria/mayorista/internal/domain/catalog"
	"github.com/dulceria/mayorista/internal/domain/stock"
)

var (
	_ catalog.Repository = (*VariantStore)(nil)
	_ stock.Store        = (*VariantStore)(nil)
)

// VariantStore holds variants in memory. The mutex makes each reserve or
// restore call one indivisible check+write, mirroring the conditional UPDATE
// of the PostgreSQL store.
type VariantStore struct {
	mu       sync.Mutex
	variants map[string]*catalog.Variant

	// FailReservesWith, when set, is returned by the next ReserveLines calls
	// until the counter reaches zero. Used to exercise the ledger's bounded
	// retry of transient failures.
	FailReservesWith error
	FailCount        int
}

// NewVariantStore creates a VariantStore seeded with the given variants.
func NewVariantStore(variants ...catalog.Variant) *VariantStore {
	m := make(map[string]*catalog.Variant, len(variants))
	for i := range variants {
		v := variants[i]
		m[v.ID] = &v
	}
	return &VariantStore{variants: m}
}

// GetByID returns a copy of the variant with the given id.
func (s *VariantStore) GetByID(_ context.Context, id string) (*catalog.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	cp := *v
	return &cp, nil
}

// GetByIDs returns copies of all variants matching the given ids. Missing ids
// are simply absent from the result, as with a SQL IN query.
func (s *VariantStore) GetByIDs(_ context.Context, ids []string) ([]catalog.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]catalog.Variant, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.variants[id]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

// StockOf returns the current stock level and backorder flag for a variant.
func (s *VariantStore) StockOf(_ context.Context, variantID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[variantID]
	if !ok {
		return 0, false, catalog.ErrVariantNotFound
	}
	return v.Stock, v.AllowBackorder, nil
}

// ReserveLines decrements stock for every line or for none. The whole
// operation runs under one lock, so concurrent reservations against the same
// variant serialize and the check never acts on a stale value.
func (s *VariantStore) ReserveLines(_ context.Context, lines []stock.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCount > 0 && s.FailReservesWith != nil {
		s.FailCount--
		return s.FailReservesWith
	}

	// Apply each line's check+decrement in order, as the SQL store's
	// per-line conditional UPDATE does inside one transaction: a later line
	// for the same variant sees the earlier decrement. On failure, undo the
	// applied lines.
	for i, line := range lines {
		v, ok := s.variants[line.VariantID]
		if !ok {
			s.rollback(lines[:i])
			return catalog.ErrVariantNotFound
		}
		if !v.AllowBackorder && v.Stock < line.Quantity {
			err := &stock.InsufficientError{
				VariantID: line.VariantID,
				Available: v.Stock,
				Requested: line.Quantity,
			}
			s.rollback(lines[:i])
			return err
		}
		v.Stock -= line.Quantity
	}
	return nil
}

// rollback credits back lines already decremented by a failed ReserveLines.
// Caller holds the lock.
func (s *VariantStore) rollback(applied []stock.Line) {
	for _, line := range applied {
		if v, ok := s.variants[line.VariantID]; ok {
			v.Stock += line.Quantity
		}
	}
}

// RestoreLines credits stock back for every line.
func (s *VariantStore) RestoreLines(_ context.Context, lines []stock.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		v, ok := s.variants[line.VariantID]
		if !ok {
			return catalog.ErrVariantNotFound
		}
		v.Stock += line.Quantity
	}
	return nil
}

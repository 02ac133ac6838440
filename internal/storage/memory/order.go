package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dulceria/mayorista/internal/domain/audit"
	"github.com/dulceria/mayorista/internal/domain/order"
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore holds orders in memory with the same optimistic-versioning
// contract as the PostgreSQL repository.
type OrderStore struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*order.Order)}
}

// Create stores a new order.
func (s *OrderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

// GetByID returns a copy of the order with the given id.
func (s *OrderStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// Update writes the order back only when the stored version matches
// o.Version, then increments the version. A mismatch is a concurrent
// modification.
func (s *OrderStore) Update(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if stored.Version != o.Version {
		return order.ErrConcurrentModification
	}
	cp := *o
	cp.Version++
	s.orders[o.ID] = &cp
	o.Version = cp.Version
	return nil
}

// List filters and pages orders, newest first.
func (s *OrderStore) List(_ context.Context, f order.ListFilter) (*order.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if matches(o, f) {
			matched = append(matched, *o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}

	return &order.Page{
		Orders: matched[start:end],
		Total:  total,
		Page:   f.Page,
		Limit:  f.Limit,
	}, nil
}

func matches(o *order.Order, f order.ListFilter) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.DeliveryMethod != "" && o.DeliveryMethod != f.DeliveryMethod {
		return false
	}
	if f.PaymentMethod != "" && o.PaymentMethod != f.PaymentMethod {
		return false
	}
	if f.CustomerID != "" && o.CreatedBy != f.CustomerID {
		return false
	}
	if f.StartDate != nil && o.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && o.CreatedAt.After(*f.EndDate) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(o.OrderNumber), q) &&
			!strings.Contains(strings.ToLower(o.Customer.Name), q) &&
			!strings.Contains(strings.ToLower(o.Customer.Email), q) {
			return false
		}
	}
	return true
}

var _ audit.Recorder = (*AuditLog)(nil)

// AuditLog collects audit entries in memory for test assertions.
type AuditLog struct {
	mu      sync.Mutex
	entries []audit.Entry

	// Err, when set, is returned by Record to exercise the caller's
	// failure-tolerance.
	Err error
}

// NewAuditLog creates an empty AuditLog.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Record appends an entry.
func (l *AuditLog) Record(_ context.Context, e audit.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return l.Err
	}
	l.entries = append(l.entries, e)
	return nil
}

// Entries returns a snapshot of the recorded entries.
func (l *AuditLog) Entries() []audit.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]audit.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrVariantNotFound is returned when a requested variant does not exist.
var ErrVariantNotFound = errors.New("variant not found")

// FixedDiscount is a flat reduction on a variant's base price, optionally
// bounded by a validity window. Exactly one of Amount or Percent is set.
type FixedDiscount struct {
	Amount     decimal.Decimal `json:"amount"`
	Percent    decimal.Decimal `json:"percent"`
	ValidFrom  *time.Time      `json:"validFrom,omitempty"`
	ValidUntil *time.Time      `json:"validUntil,omitempty"`
}

// ActiveAt reports whether the discount's validity window covers t.
// A nil bound is open-ended.
func (d *FixedDiscount) ActiveAt(t time.Time) bool {
	if d.ValidFrom != nil && t.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidUntil != nil && t.After(*d.ValidUntil) {
		return false
	}
	return true
}

// Tier is a single quantity break in a tiered discount table. Exactly one of
// UnitPrice or PercentOff is set.
type Tier struct {
	MinQuantity int             `json:"minQuantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	PercentOff  decimal.Decimal `json:"percentOff"`
}

// Variant is a concrete purchasable SKU under a parent product.
type Variant struct {
	ID                string
	ProductID         string
	Name              string
	Attributes        map[string]string
	Price             decimal.Decimal
	Stock             int
	LowStockThreshold int
	AllowBackorder    bool
	Promo             bool
	FixedDiscount     *FixedDiscount
	TieredDiscount    []Tier
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLowStock reports whether the variant is in stock but at or below its
// low-stock threshold.
func (v *Variant) IsLowStock() bool {
	return v.Stock > 0 && v.Stock <= v.LowStockThreshold
}

// IsOutOfStock reports whether the variant cannot be sold at all.
func (v *Variant) IsOutOfStock() bool {
	return v.Stock == 0 && !v.AllowBackorder
}

// Repository defines read access to the variant catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Variant, error)
	GetByIDs(ctx context.Context, ids []string) ([]Variant, error)
}

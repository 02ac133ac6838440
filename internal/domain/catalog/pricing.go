package catalog

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ErrInvalidQuantity is returned when a line is priced with a non-positive
// quantity.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// InvalidDiscountConfigError indicates a malformed discount configuration on a
// variant. It is a catalog data-integrity problem surfaced to staff, never to
// the customer.
type InvalidDiscountConfigError struct {
	VariantID string
	Reason    string
}

func (e *InvalidDiscountConfigError) Error() string {
	return fmt.Sprintf("invalid discount configuration for variant %s: %s", e.VariantID, e.Reason)
}

// LinePrice is the result of pricing a single order line.
type LinePrice struct {
	// UnitPrice is the variant's base price before any discount.
	UnitPrice decimal.Decimal
	// Discount is the per-unit reduction actually applied, always >= 0.
	Discount decimal.Decimal
	// LineTotal is (UnitPrice - Discount) * Quantity.
	LineTotal decimal.Decimal
	// AppliedTier is the quantity break that won, if any.
	AppliedTier *Tier
	// AppliedFixed reports whether the fixed discount won.
	AppliedFixed bool
}

// PriceLine resolves the effective unit price for ordering quantity units of
// the variant at time at. It considers the tiered quantity breaks and the
// fixed discount, picks whichever yields the lowest unit price for the
// customer, and favours the tier on a tie. The result is reproducible: the
// only time dependency is the fixed discount validity window checked against
// at.
func PriceLine(v *Variant, quantity int, at time.Time) (LinePrice, error) {
	if quantity <= 0 {
		return LinePrice{}, ErrInvalidQuantity
	}
	if err := validateDiscounts(v); err != nil {
		return LinePrice{}, err
	}

	base := v.Price
	chosen := base
	var appliedTier *Tier
	appliedFixed := false

	// Highest tier whose MinQuantity <= quantity. Tiers are validated to be
	// strictly increasing, so the last match wins.
	for i := range v.TieredDiscount {
		t := &v.TieredDiscount[i]
		if t.MinQuantity > quantity {
			break
		}
		appliedTier = t
	}
	if appliedTier != nil {
		chosen = tierUnitPrice(base, appliedTier)
	}

	// The fixed discount wins only when it is strictly cheaper than the tier
	// result: the tier is the primary merchandising mechanism.
	if v.FixedDiscount != nil && v.FixedDiscount.ActiveAt(at) {
		candidate := fixedUnitPrice(base, v.FixedDiscount)
		if candidate.LessThan(chosen) {
			chosen = candidate
			appliedTier = nil
			appliedFixed = true
		}
	}

	if chosen.IsNegative() {
		chosen = decimal.Zero
	}
	if chosen.GreaterThan(base) {
		chosen = base
	}

	discount := base.Sub(chosen).Round(2)
	qty := decimal.NewFromInt(int64(quantity))

	return LinePrice{
		UnitPrice:    base,
		Discount:     discount,
		LineTotal:    base.Sub(discount).Mul(qty),
		AppliedTier:  appliedTier,
		AppliedFixed: appliedFixed,
	}, nil
}

func tierUnitPrice(base decimal.Decimal, t *Tier) decimal.Decimal {
	if !t.PercentOff.IsZero() {
		return base.Sub(base.Mul(t.PercentOff).Div(hundred)).Round(2)
	}
	return t.UnitPrice
}

func fixedUnitPrice(base decimal.Decimal, d *FixedDiscount) decimal.Decimal {
	if !d.Percent.IsZero() {
		return base.Sub(base.Mul(d.Percent).Div(hundred)).Round(2)
	}
	return base.Sub(d.Amount)
}

// validateDiscounts checks the structural invariants of the variant's
// discount configuration: strictly increasing tier quantities starting at 1
// or above, non-negative values, and a non-increasing effective unit price as
// quantity rises.
func validateDiscounts(v *Variant) error {
	prevMin := 0
	prevPrice := v.Price
	for i := range v.TieredDiscount {
		t := &v.TieredDiscount[i]
		if t.MinQuantity < 1 {
			return &InvalidDiscountConfigError{VariantID: v.ID, Reason: fmt.Sprintf("tier %d: minQuantity must be >= 1", i)}
		}
		if t.MinQuantity <= prevMin {
			return &InvalidDiscountConfigError{VariantID: v.ID, Reason: fmt.Sprintf("tier %d: minQuantity %d not strictly increasing", i, t.MinQuantity)}
		}
		if t.UnitPrice.IsNegative() || t.PercentOff.IsNegative() {
			return &InvalidDiscountConfigError{VariantID: v.ID, Reason: fmt.Sprintf("tier %d: negative value", i)}
		}
		if t.PercentOff.GreaterThan(hundred) {
			return &InvalidDiscountConfigError{VariantID: v.ID, Reason: fmt.Sprintf("tier %d: percentOff exceeds 100", i)}
		}
		price := tierUnitPrice(v.Price, t)
		if price.GreaterThan(prevPrice) {
			return &InvalidDiscountConfigError{VariantID: v.ID, Reason: fmt.Sprintf("tier %d: unit price rises at higher quantity", i)}
		}
		prevMin = t.MinQuantity
		prevPrice = price
	}

	if d := v.FixedDiscount; d != nil {
		if d.Amount.IsNegative() || d.Percent.IsNegative() {
			return &InvalidDiscountConfigError{VariantID: v.ID, Reason: "fixed discount: negative value"}
		}
		if d.Percent.GreaterThan(hundred) {
			return &InvalidDiscountConfigError{VariantID: v.ID, Reason: "fixed discount: percent exceeds 100"}
		}
		if d.ValidFrom != nil && d.ValidUntil != nil && d.ValidUntil.Before(*d.ValidFrom) {
			return &InvalidDiscountConfigError{VariantID: v.ID, Reason: "fixed discount: validUntil before validFrom"}
		}
	}
	return nil
}

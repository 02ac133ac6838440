package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dulceria/mayorista/internal/domain/catalog"
	"github.com/dulceria/mayorista/internal/domain/stock"
)

const (
	variantColumns = `id, product_id, name, attributes, price, stock, low_stock_threshold,
		allow_backorder, promo, fixed_discount, tiered_discount, created_at, updated_at`

	getVariantByIDSQL = `SELECT ` + variantColumns + ` FROM product_variants WHERE id = $1`

	getVariantsByIDsSQL = `SELECT ` + variantColumns + ` FROM product_variants WHERE id = ANY($1) ORDER BY id`

	// The conditional WHERE makes check-and-decrement a single indivisible
	// statement: two concurrent reservations for the same variant serialize on
	// the row lock and the loser sees the already-decremented stock.
	reserveStockSQL = `UPDATE product_variants
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND (allow_backorder OR stock >= $2)`

	restoreStockSQL = `UPDATE product_variants
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1`

	stockOfSQL = `SELECT stock, allow_backorder FROM product_variants WHERE id = $1`
)

var (
	_ catalog.Repository = (*VariantRepository)(nil)
	_ stock.Store        = (*VariantRepository)(nil)
)

// VariantRepository implements catalog reads and stock mutations backed by
// PostgreSQL. Both live on one type because they share the
// product_variants table.
type VariantRepository struct {
	pool *pgxpool.Pool
}

// NewVariantRepository returns a VariantRepository that uses the given pool.
func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

// GetByID returns a single variant by its identifier.
func (r *VariantRepository) GetByID(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// GetByIDs returns variants matching any of the given IDs. Missing IDs are
// simply absent from the result; callers detect them by count.
func (r *VariantRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// ReserveLines decrements stock for every line inside one transaction, so a
// failure on any line rolls back the decrements already applied.
func (r *VariantRepository) ReserveLines(ctx context.Context, lines []stock.Line) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return markTransient(fmt.Errorf("beginning reservation: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, line := range lines {
		tag, err := tx.Exec(ctx, reserveStockSQL, line.VariantID, line.Quantity)
		if err != nil {
			return markTransient(fmt.Errorf("reserving %d of variant %q: %w", line.Quantity, line.VariantID, err))
		}
		if tag.RowsAffected() == 0 {
			return r.classifyRejection(ctx, tx, line)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return markTransient(fmt.Errorf("committing reservation: %w", err))
	}
	return nil
}

// classifyRejection distinguishes an unknown variant from one without enough
// stock after the conditional update matched no row.
func (r *VariantRepository) classifyRejection(ctx context.Context, tx pgx.Tx, line stock.Line) error {
	var (
		available      int
		allowBackorder bool
	)
	err := tx.QueryRow(ctx, stockOfSQL, line.VariantID).Scan(&available, &allowBackorder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrVariantNotFound
		}
		return markTransient(fmt.Errorf("checking stock of variant %q: %w", line.VariantID, err))
	}
	return &stock.InsufficientError{
		VariantID: line.VariantID,
		Available: available,
		Requested: line.Quantity,
	}
}

// RestoreLines adds quantities back in one transaction.
func (r *VariantRepository) RestoreLines(ctx context.Context, lines []stock.Line) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return markTransient(fmt.Errorf("beginning restore: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, line := range lines {
		tag, err := tx.Exec(ctx, restoreStockSQL, line.VariantID, line.Quantity)
		if err != nil {
			return markTransient(fmt.Errorf("restoring %d of variant %q: %w", line.Quantity, line.VariantID, err))
		}
		if tag.RowsAffected() == 0 {
			return catalog.ErrVariantNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return markTransient(fmt.Errorf("committing restore: %w", err))
	}
	return nil
}

// StockOf returns the current stock level and backorder flag for a variant.
func (r *VariantRepository) StockOf(ctx context.Context, variantID string) (int, bool, error) {
	var (
		current        int
		allowBackorder bool
	)
	err := r.pool.QueryRow(ctx, stockOfSQL, variantID).Scan(&current, &allowBackorder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, catalog.ErrVariantNotFound
		}
		return 0, false, markTransient(fmt.Errorf("reading stock of variant %q: %w", variantID, err))
	}
	return current, allowBackorder, nil
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(
		&v.ID, &v.ProductID, &v.Name, &v.Attributes, &v.Price,
		&v.Stock, &v.LowStockThreshold, &v.AllowBackorder, &v.Promo,
		&v.FixedDiscount, &v.TieredDiscount,
		&v.CreatedAt, &v.UpdatedAt,
	)
	return v, err
}

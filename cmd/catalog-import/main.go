// Command catalog-import loads gzipped supplier price lists into the variant
// catalog. Each supplier ships a CSV (sku,product_id,name,price,stock); a SKU
// offered by more than one supplier is ambiguous and skipped, since the
// conflicting prices need manual resolution.
//
// Files can run to millions of rows, so cross-supplier duplicate detection
// uses per-file bloom filters built and probed concurrently in two passes
// instead of holding every SKU in memory.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dulceria/mayorista/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

// priceRow is one parsed supplier price-list line.
type priceRow struct {
	SKU       string
	ProductID string
	Name      string
	Price     decimal.Decimal
	Stock     int
}

// fileResult holds the parsed rows of one file and the SKUs that probed
// positive in another supplier's filter.
type fileResult struct {
	rows       []priceRow
	conflicted map[string]struct{}
}

const upsertVariantSQL = `INSERT INTO product_variants (id, product_id, name, price, stock)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		product_id = EXCLUDED.product_id, name = EXCLUDED.name,
		price = EXCLUDED.price, stock = EXCLUDED.stock, updated_at = now()`

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing supplier *.csv.gz price lists")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "glob price lists")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz price lists found in %s", dataDir)
	}

	// Pass 1: build one bloom filter of SKUs per file, concurrently.
	slog.Info("pass 1: building SKU filters", slog.Int("files", len(files)))

	filters, err := buildSKUFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build sku filters")
	}

	// Pass 2: parse rows and probe the other suppliers' filters.
	slog.Info("pass 2: parsing rows and detecting cross-supplier SKUs")

	rows, skipped, err := collectRows(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "collect rows")
	}

	slog.Info("rows collected", slog.Int("rows", len(rows)), slog.Int("skipped_conflicts", skipped))

	if len(rows) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeRows(ctx, pool, rows); err != nil {
		return errors.Wrap(err, "write rows to database")
	}

	return nil
}

// buildSKUFilters creates one bloom filter per file, concurrently.
func buildSKUFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamPriceList(ctx, path, func(row priceRow) {
			filter.AddString(row.SKU)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress", slog.Int("file", idx+1), slog.Uint64("rows", count))
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for %s", path)
		}

		slog.Info("pass 1 complete", slog.String("file", filepath.Base(path)), slog.Uint64("rows", count))

		filters[idx] = filter
		return nil
	}
}

// collectRows re-streams each file, keeping rows whose SKU appears in no
// other supplier's filter. The filters can produce false positives, so a
// genuinely unique SKU is skipped at most at the configured error rate.
func collectRows(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]priceRow, int, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(collectRowsInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var (
		rows    []priceRow
		skipped int
	)
	for _, r := range results {
		for _, row := range r.rows {
			if _, ok := r.conflicted[row.SKU]; ok {
				skipped++
				continue
			}
			rows = append(rows, row)
		}
	}

	return rows, skipped, nil
}

func collectRowsInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		res := fileResult{conflicted: make(map[string]struct{})}
		var count uint64

		if err := streamPriceList(ctx, path, func(row priceRow) {
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress", slog.Int("file", idx+1), slog.Uint64("rows", count))
			}

			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(row.SKU) {
					res.conflicted[row.SKU] = struct{}{}
					break
				}
			}
			res.rows = append(res.rows, row)
		}); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("pass 2 complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("rows", count),
			slog.Int("conflicts", len(res.conflicted)),
		)

		results[idx] = res
		return nil
	}
}

// streamPriceList opens a gzip-compressed CSV and calls fn for each parsed
// row. Malformed rows are logged and skipped rather than aborting the import.
func streamPriceList(ctx context.Context, path string, fn func(row priceRow)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	reader := csv.NewReader(gz)
	reader.FieldsPerRecord = 5
	reader.ReuseRecord = true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}

		row, err := parseRow(record)
		if err != nil {
			slog.Warn("skipping malformed row",
				slog.String("file", filepath.Base(path)),
				slog.String("sku", record[0]),
				slog.String("error", err.Error()),
			)
			continue
		}
		fn(row)
	}
}

func parseRow(record []string) (priceRow, error) {
	price, err := decimal.NewFromString(record[3])
	if err != nil {
		return priceRow{}, errors.Wrap(err, "parse price")
	}
	if price.IsNegative() {
		return priceRow{}, errors.New("negative price")
	}

	stock, err := strconv.Atoi(record[4])
	if err != nil {
		return priceRow{}, errors.Wrap(err, "parse stock")
	}
	if stock < 0 {
		return priceRow{}, errors.New("negative stock")
	}

	return priceRow{
		SKU:       record[0],
		ProductID: record[1],
		Name:      record[2],
		Price:     price,
		Stock:     stock,
	}, nil
}

// writeRows upserts all collected rows into the variant catalog.
func writeRows(ctx context.Context, pool *pgxpool.Pool, rows []priceRow) error {
	slog.Info("writing variants to database", slog.Int("count", len(rows)))

	for i, row := range rows {
		if _, err := pool.Exec(ctx, upsertVariantSQL,
			row.SKU, row.ProductID, row.Name, row.Price, row.Stock,
		); err != nil {
			return errors.Wrapf(err, "upsert variant %s", row.SKU)
		}

		if (i+1)%1000 == 0 || i+1 == len(rows) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(rows)))
		}
	}

	return nil
}

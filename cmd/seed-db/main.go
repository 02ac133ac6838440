// Command seed-db applies migrations and loads the variant catalog and a
// staff API key into PostgreSQL. Intended for local development and test
// environments.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dulceria/mayorista/internal/domain/catalog"
	"github.com/dulceria/mayorista/internal/storage/postgres"
)

type variantJSON struct {
	ID                string                 `json:"id"`
	ProductID         string                 `json:"productId"`
	Name              string                 `json:"name"`
	Attributes        map[string]string      `json:"attributes"`
	Price             decimal.Decimal        `json:"price"`
	Stock             int                    `json:"stock"`
	LowStockThreshold int                    `json:"lowStockThreshold"`
	AllowBackorder    bool                   `json:"allowBackorder"`
	Promo             bool                   `json:"promo"`
	FixedDiscount     *catalog.FixedDiscount `json:"fixedDiscount"`
	TieredDiscount    []catalog.Tier         `json:"tieredDiscount"`
}

const upsertVariantSQL = `INSERT INTO product_variants
	(id, product_id, name, attributes, price, stock, low_stock_threshold, allow_backorder, promo, fixed_discount, tiered_discount)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE SET
		product_id = EXCLUDED.product_id, name = EXCLUDED.name,
		attributes = EXCLUDED.attributes, price = EXCLUDED.price,
		stock = EXCLUDED.stock, low_stock_threshold = EXCLUDED.low_stock_threshold,
		allow_backorder = EXCLUDED.allow_backorder, promo = EXCLUDED.promo,
		fixed_discount = EXCLUDED.fixed_discount, tiered_discount = EXCLUDED.tiered_discount,
		updated_at = now()`

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, role, active)
	VALUES ($1, $2, $3, $4, TRUE)
	ON CONFLICT (id) DO UPDATE SET
		key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
		role = EXCLUDED.role, active = TRUE`

func main() {
	var (
		databaseURL  string
		variantsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&variantsFile, "variants-file", "db/seed/variants.json", "path to variants JSON file")
	flag.StringVar(&apiKey, "api-key", "", "staff API key to seed (or DULCE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or DULCE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("DULCE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or DULCE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("DULCE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, variantsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, variantsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedVariants(ctx, pool, variantsFile); err != nil {
		return errors.Wrap(err, "seed variants")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedVariants(ctx context.Context, pool *pgxpool.Pool, variantsFile string) error {
	slog.Info("reading variants file", slog.String("path", variantsFile))

	data, err := os.ReadFile(variantsFile)
	if err != nil {
		return errors.Wrap(err, "read variants file")
	}

	var variants []variantJSON
	if err := json.Unmarshal(data, &variants); err != nil {
		return errors.Wrap(err, "parse variants JSON")
	}

	slog.Info("upserting variants", slog.Int("count", len(variants)))

	for _, v := range variants {
		attrs, fixed, tiers, err := marshalVariant(v)
		if err != nil {
			return errors.Wrapf(err, "encode variant %s", v.ID)
		}

		if _, err := pool.Exec(ctx, upsertVariantSQL,
			v.ID, v.ProductID, v.Name, attrs, v.Price, v.Stock,
			v.LowStockThreshold, v.AllowBackorder, v.Promo, fixed, tiers,
		); err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.ID)
		}

		slog.Info("upserted variant", slog.String("id", v.ID), slog.String("name", v.Name))
	}

	return nil
}

func marshalVariant(v variantJSON) (attrs, fixed, tiers []byte, err error) {
	if v.Attributes == nil {
		v.Attributes = map[string]string{}
	}
	if attrs, err = json.Marshal(v.Attributes); err != nil {
		return nil, nil, nil, errors.Wrap(err, "attributes")
	}
	if v.FixedDiscount != nil {
		if fixed, err = json.Marshal(v.FixedDiscount); err != nil {
			return nil, nil, nil, errors.Wrap(err, "fixed discount")
		}
	}
	if v.TieredDiscount != nil {
		if tiers, err = json.Marshal(v.TieredDiscount); err != nil {
			return nil, nil, nil, errors.Wrap(err, "tiered discount")
		}
	}
	return attrs, fixed, tiers, nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default staff API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default staff key", "staff",
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("role", "staff"))

	return nil
}

package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/migrations"
	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDBLockID int64 = 801234568

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// NewTestPool connects to TEST_DATABASE_URL, or to a throwaway postgres
// container when it is unset. Tests are skipped when neither is reachable.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = startContainer(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.MaxConns = 8
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	lockTestDB(t, pool)

	return pool
}

func startContainer(t *testing.T) string {
	t.Helper()
	containerOnce.Do(func() {
		ctx := context.Background()
		ctr, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("shelfwiser"),
			postgres.WithUsername("shelfwiser"),
			postgres.WithPassword("shelfwiser"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Skipf("skipping Postgres integration tests: %v", containerErr)
	}
	return containerDSN
}

func ApplyMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if err := migrations.Apply(pool); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}

func TruncateAll(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `
TRUNCATE outbox_events, held_sales, shop_sequences, payment_attempts, order_payments,
	inventory_reservations, order_items, orders, cart_items, carts,
	inventory_locations, stock_locations, service_addons, service_variants, services,
	product_packaging_types, product_variants, products, shops
RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// Shop is a seeded shop with its scope ids.
type Shop struct {
	TenantID string
	ID       string
}

func InsertShop(t *testing.T, ctx context.Context, pool *pgxpool.Pool, currency string, taxRate, shippingFee string) Shop {
	t.Helper()
	shop := Shop{TenantID: uuid.NewString()}
	if err := pool.QueryRow(ctx, `
INSERT INTO shops (tenant_id, name, currency, tax_rate, shipping_fee)
VALUES ($1, 'Test shop', $2, $3, $4)
RETURNING id`,
		shop.TenantID, currency, decimal.RequireFromString(taxRate), decimal.RequireFromString(shippingFee),
	).Scan(&shop.ID); err != nil {
		t.Fatalf("insert shop: %v", err)
	}
	return shop
}

// InsertProductVariant seeds an active product variant and one stock location
// per entry in stock. It returns the variant id and the inventory location ids.
func InsertProductVariant(t *testing.T, ctx context.Context, pool *pgxpool.Pool, shop Shop, sku, price string, stock ...int) (string, []string) {
	t.Helper()
	var productID, variantID string
	if err := pool.QueryRow(ctx,
		`INSERT INTO products (tenant_id, shop_id, name) VALUES ($1, $2, $3) RETURNING id`,
		shop.TenantID, shop.ID, "Product "+sku,
	).Scan(&productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if err := pool.QueryRow(ctx, `
INSERT INTO product_variants (tenant_id, shop_id, product_id, sku, name, price)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		shop.TenantID, shop.ID, productID, sku, "Variant "+sku, decimal.RequireFromString(price),
	).Scan(&variantID); err != nil {
		t.Fatalf("insert product variant: %v", err)
	}

	locations := make([]string, 0, len(stock))
	for i, qty := range stock {
		var stockLocationID, inventoryID string
		if err := pool.QueryRow(ctx,
			`INSERT INTO stock_locations (tenant_id, shop_id, name) VALUES ($1, $2, $3) RETURNING id`,
			shop.TenantID, shop.ID, "Aisle "+string(rune('A'+i)),
		).Scan(&stockLocationID); err != nil {
			t.Fatalf("insert stock location: %v", err)
		}
		if err := pool.QueryRow(ctx, `
INSERT INTO inventory_locations (tenant_id, shop_id, product_variant_id, location_id, quantity)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
			shop.TenantID, shop.ID, variantID, stockLocationID, qty,
		).Scan(&inventoryID); err != nil {
			t.Fatalf("insert inventory location: %v", err)
		}
		locations = append(locations, inventoryID)
	}
	return variantID, locations
}

func InsertPackagingType(t *testing.T, ctx context.Context, pool *pgxpool.Pool, shop Shop, variantID, name string, unitsPerPackage int, price string) string {
	t.Helper()
	var id string
	if err := pool.QueryRow(ctx, `
INSERT INTO product_packaging_types (tenant_id, product_variant_id, name, units_per_package, price)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
		shop.TenantID, variantID, name, unitsPerPackage, decimal.RequireFromString(price),
	).Scan(&id); err != nil {
		t.Fatalf("insert packaging type: %v", err)
	}
	return id
}

// InsertServiceVariant seeds a service, one variant and one addon. It returns
// the variant id and the addon id.
func InsertServiceVariant(t *testing.T, ctx context.Context, pool *pgxpool.Pool, shop Shop, sku, basePrice, addonPrice string) (string, string) {
	t.Helper()
	var serviceID, variantID, addonID string
	if err := pool.QueryRow(ctx,
		`INSERT INTO services (tenant_id, shop_id, name) VALUES ($1, $2, $3) RETURNING id`,
		shop.TenantID, shop.ID, "Service "+sku,
	).Scan(&serviceID); err != nil {
		t.Fatalf("insert service: %v", err)
	}
	if err := pool.QueryRow(ctx, `
INSERT INTO service_variants (tenant_id, shop_id, service_id, sku, name, base_price, customer_materials_price, shop_materials_price)
VALUES ($1, $2, $3, $4, $5, $6, $6, $6 + 10)
RETURNING id`,
		shop.TenantID, shop.ID, serviceID, sku, "Variant "+sku, decimal.RequireFromString(basePrice),
	).Scan(&variantID); err != nil {
		t.Fatalf("insert service variant: %v", err)
	}
	if err := pool.QueryRow(ctx, `
INSERT INTO service_addons (tenant_id, service_id, name, price, max_quantity)
VALUES ($1, $2, 'Express', $3, 2)
RETURNING id`,
		shop.TenantID, serviceID, decimal.RequireFromString(addonPrice),
	).Scan(&addonID); err != nil {
		t.Fatalf("insert service addon: %v", err)
	}
	return variantID, addonID
}

// Reserved returns reserved_quantity for one inventory location.
func Reserved(t *testing.T, ctx context.Context, pool *pgxpool.Pool, locationID string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(ctx,
		`SELECT reserved_quantity FROM inventory_locations WHERE id = $1`, locationID,
	).Scan(&n); err != nil {
		t.Fatalf("read reserved quantity: %v", err)
	}
	return n
}

func lockTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
	})
}

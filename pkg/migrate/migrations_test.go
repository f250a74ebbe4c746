package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestMigrationsCarryLedgerConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_stores_and_products": {
			"CONSTRAINT chk_products_stock CHECK (stock >= 0)",
			"CONSTRAINT chk_products_price CHECK (price_cents >= 0)",
		},
		"create_addresses_and_cart_items": {
			"CREATE UNIQUE INDEX ux_cart_items_user_product_variant",
			"CONSTRAINT chk_cart_items_quantity CHECK (quantity > 0)",
		},
		"create_coupons": {
			"CREATE UNIQUE INDEX ux_coupons_code ON coupons (code)",
			"CREATE TYPE discount_type AS ENUM ('percentage', 'fixed')",
		},
		"create_orders": {
			"CREATE UNIQUE INDEX ux_orders_order_number ON orders (order_number)",
			"CONSTRAINT chk_orders_total CHECK (total_amount_cents >= 0)",
			"CONSTRAINT chk_order_items_quantity CHECK (quantity > 0)",
			"CREATE TABLE order_status_history",
			"version integer NOT NULL DEFAULT 1",
		},
		"create_wallets": {
			"CONSTRAINT chk_wallets_balance CHECK (balance_cents >= 0)",
			"CREATE UNIQUE INDEX ux_wallets_user_id ON wallets (user_id)",
			"CONSTRAINT chk_wallet_transactions_amount CHECK (amount_cents > 0)",
		},
		"create_cashbacks": {
			"CREATE UNIQUE INDEX ux_cashbacks_order_id ON cashbacks (order_id)",
			"CREATE TYPE cashback_status AS ENUM ('eligible', 'processed', 'expired', 'failed')",
		},
		"create_vendor_settlements": {
			"CREATE UNIQUE INDEX ux_vendor_settlements_order_store ON vendor_settlements (order_id, store_id)",
			"net_payout_cents = gross_cents - platform_commission_cents - cashback_cents",
		},
		"create_outbox_events": {
			"CREATE UNIQUE INDEX ux_outbox_events_dedupe",
			"WHERE published_at IS NULL",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, check := range checks {
			require.Truef(t, strings.Contains(content, check), "%s missing %q", suffix, check)
		}
	}
}

func TestMigrationsDropWhatTheyCreate(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, path := range matches {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		content := string(data)
		down := content[strings.Index(content, "-- +goose Down"):]

		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if name, ok := strings.CutPrefix(line, "CREATE TABLE "); ok {
				name = strings.TrimSuffix(name, " (")
				require.Containsf(t, down, "DROP TABLE IF EXISTS "+name, "%s does not drop %s", filepath.Base(path), name)
			}
		}
	}
}

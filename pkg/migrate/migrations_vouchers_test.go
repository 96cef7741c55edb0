package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVouchersMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_vouchers_table.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no vouchers migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE discount_type_enum AS ENUM",
		"CREATE TYPE settlement_status_enum AS ENUM",
		"CREATE TABLE IF NOT EXISTS vouchers",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_vouchers_ledger_token_id",
		"CHECK (remaining_quantity >= 0)",
		"CHECK (remaining_quantity <= max_quantity)",
		"DROP TABLE IF EXISTS vouchers",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

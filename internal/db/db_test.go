package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", n)
		}
	}
	require.Equal(t, ups, downs)
}

func TestMigrationsCreateStoreTables(t *testing.T) {
	var all strings.Builder
	names, err := MigrationNames()
	require.NoError(t, err)
	for _, n := range names {
		if !strings.HasSuffix(n, ".up.sql") {
			continue
		}
		b, err := migrations.ReadFile("migrations/" + n)
		require.NoError(t, err)
		all.Write(b)
	}
	for _, table := range []string{"products", "coupons", "orders", "domain_events", "queue_dlq", "admin_audit_log"} {
		require.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaContainsAllTables(t *testing.T) {
	schema, err := Schema()
	require.NoError(t, err)

	for _, table := range []string{"editions", "counters", "registrations", "action_requests", "daily_job_logs", "outbound_mails"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table, "table %s", table)
	}
	assert.Contains(t, schema, "UNIQUE (registration_id, type)")
	assert.Contains(t, schema, "UNIQUE (edition_id, registration_number)")
}

func TestMigrationFilesArePaired(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}
	for name := range names {
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, names[base+".down.sql"], "missing down migration for %s", name)
		}
	}
}

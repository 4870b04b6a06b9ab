package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(files, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(files, "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestInitialMigrationCreatesAccessLogs(t *testing.T) {
	data, err := fs.ReadFile(files, "001_create_access_logs.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS access_logs")
	assert.Contains(t, string(data), "id             UUID PRIMARY KEY")
}

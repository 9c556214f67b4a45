package migration

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	up, _, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNIQUE (user_id, tenant_id)")
}

func TestRunMigrationsRequiresDB(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}

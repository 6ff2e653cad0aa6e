package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateStore_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "grocerytrack.db")
	var logs bytes.Buffer
	log := zerolog.New(&logs)

	first, err := migrateStore(ctx, path, "test", log)
	require.NoError(t, err)
	assert.Greater(t, first, 0)
	assert.Contains(t, logs.String(), "[OK]   0001_")

	logs.Reset()
	second, err := migrateStore(ctx, path, "test", log)
	require.NoError(t, err)
	assert.Zero(t, second)
	assert.Contains(t, logs.String(), "Database is up to date")
}

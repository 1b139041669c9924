// cmd/seed/main_test.go
package main

import (
	"context"
	"testing"

	"bookcatalog/internal/catalog"
	"bookcatalog/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeedIsRepeatable(t *testing.T) {
	svc := catalog.NewService(memory.New(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, seed(ctx, svc, zap.NewNop()))
	require.NoError(t, seed(ctx, svc, zap.NewNop()))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(samples), stats.Total)
	assert.Equal(t, 1, stats.CheckedOut)
	assert.Equal(t, 1, stats.Reserved)
	assert.Equal(t, 6, stats.AvailableCopies)
}

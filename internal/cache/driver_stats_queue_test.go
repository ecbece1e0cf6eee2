package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueDeduplicatesAndDrains(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryDriverStatsQueue()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, q.MarkDirty(ctx, a))
	require.NoError(t, q.MarkDirty(ctx, a))
	require.NoError(t, q.MarkDirty(ctx, b))
	require.NoError(t, q.MarkDirty(ctx, c))

	first, err := q.Drain(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	rest, err := q.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	assert.ElementsMatch(t, []uuid.UUID{a, b, c}, append(first, rest...))

	empty, err := q.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

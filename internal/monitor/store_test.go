package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBreakerStorePassesThroughOnSuccess(t *testing.T) {
	inner := &fakeStore{}
	store := NewBreakerStore(inner)

	err := store.WriteBatch(context.Background(), samplePoints())

	require.NoError(t, err)
	require.Len(t, inner.batches, 1)
}

func TestBreakerStoreSurfacesPersistentFailure(t *testing.T) {
	inner := &fakeStore{failN: 100}
	store := NewBreakerStore(inner)

	err := store.WriteBatch(context.Background(), samplePoints())

	require.Error(t, err)
}

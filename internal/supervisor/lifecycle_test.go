package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/pipectl/internal/config"
)

type fakeWorkerConn struct{}

func (fakeWorkerConn) Alive() bool                { return true }
func (fakeWorkerConn) PID() int                   { return 1 }
func (fakeWorkerConn) Terminate() error           { return nil }
func (fakeWorkerConn) Kill() error                { return nil }
func (fakeWorkerConn) Join(_ time.Duration) error { return nil }
func (fakeWorkerConn) SendCommand(_, _, _ string, _ []byte, _ time.Duration) ([]byte, *WireErr, error) {
	return nil, nil, nil
}

func TestWarmPoolTopUpAssignsDistinctProvisionalIDs(t *testing.T) {
	table := NewTable()
	tunables := config.Defaults()
	tunables.WarmPoolSize = 3

	pool := NewWarmPool(table, tunables, func(context.Context) (*ManagedWorker, error) {
		return NewManagedWorker("", fakeWorkerConn{}), nil
	})

	pool.topUp(context.Background())

	require.Equal(t, 3, table.CountIdle())
	ids := make(map[string]bool)
	for _, w := range table.Snapshot() {
		require.NotEmpty(t, w.PipelineID)
		require.False(t, ids[w.PipelineID], "duplicate provisional pipeline id %q", w.PipelineID)
		ids[w.PipelineID] = true
	}
}

func TestWarmPoolTopUpStopsAtTargetSize(t *testing.T) {
	table := NewTable()
	tunables := config.Defaults()
	tunables.WarmPoolSize = 2

	spawnCount := 0
	pool := NewWarmPool(table, tunables, func(context.Context) (*ManagedWorker, error) {
		spawnCount++
		return NewManagedWorker("", fakeWorkerConn{}), nil
	})

	pool.topUp(context.Background())
	require.Equal(t, 2, spawnCount)
	require.Equal(t, 2, table.CountIdle())

	pool.topUp(context.Background())
	require.Equal(t, 2, spawnCount, "a full warm pool should not spawn replacements")
}

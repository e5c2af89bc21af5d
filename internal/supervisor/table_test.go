package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	tbl := NewTable()
	tbl.Insert(&ManagedWorker{PipelineID: "p1"})

	w, ok := tbl.Get("p1")
	require.True(t, ok)
	require.Equal(t, "p1", w.PipelineID)

	h, ok := tbl.Health("p1")
	require.True(t, ok)
	require.False(t, h.MarkedForRemoval)

	tbl.Remove("p1")
	_, ok = tbl.Get("p1")
	require.False(t, ok)
	_, ok = tbl.Health("p1")
	require.False(t, ok)
}

func TestCountIdleExcludesMarkedForRemoval(t *testing.T) {
	tbl := NewTable()
	tbl.Insert(&ManagedWorker{PipelineID: "idle1", IsIdle: true})
	tbl.Insert(&ManagedWorker{PipelineID: "idle2", IsIdle: true})
	tbl.Insert(&ManagedWorker{PipelineID: "busy", IsIdle: false})

	require.Equal(t, 2, tbl.CountIdle())

	tbl.MarkForRemoval("idle1")
	require.Equal(t, 1, tbl.CountIdle())
}

func TestMarkAllForRemovalAffectsEveryRow(t *testing.T) {
	tbl := NewTable()
	tbl.Insert(&ManagedWorker{PipelineID: "a"})
	tbl.Insert(&ManagedWorker{PipelineID: "b"})

	tbl.MarkAllForRemoval()

	ha, _ := tbl.Health("a")
	hb, _ := tbl.Health("b")
	require.True(t, ha.MarkedForRemoval)
	require.True(t, hb.MarkedForRemoval)
}

func TestIncrementAndResetFailures(t *testing.T) {
	tbl := NewTable()
	tbl.Insert(&ManagedWorker{PipelineID: "p1"})

	require.Equal(t, 1, tbl.IncrementFailures("p1"))
	require.Equal(t, 2, tbl.IncrementFailures("p1"))

	tbl.ResetFailures("p1")
	h, _ := tbl.Health("p1")
	require.Equal(t, 0, h.Failures)
}

func TestIncrementFailuresOnUnknownPipelineIsNoop(t *testing.T) {
	tbl := NewTable()
	require.Equal(t, 0, tbl.IncrementFailures("missing"))
}

func TestSnapshotIsIndependentOfLiveTable(t *testing.T) {
	tbl := NewTable()
	tbl.Insert(&ManagedWorker{PipelineID: "p1"})

	snap := tbl.Snapshot()
	require.Len(t, snap, 1)

	tbl.Remove("p1")
	require.Len(t, snap, 1, "snapshot must not reflect later mutations")
	require.Empty(t, tbl.List())
}

package monitor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

type fakeStore struct {
	batches [][]pipelinemodel.MetricPoint
	failN   int
}

func (f *fakeStore) WriteBatch(_ context.Context, points []pipelinemodel.MetricPoint) error {
	if f.failN > 0 {
		f.failN--
		return errTransient
	}
	f.batches = append(f.batches, points)
	return nil
}

var errTransient = fakeErr("transient store failure")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func samplePoints() []pipelinemodel.MetricPoint {
	return []pipelinemodel.MetricPoint{
		{Measurement: "frame_latency", Tags: map[string]string{"pipeline_id": "p1"}, Fields: map[string]interface{}{"value": 1.5}, Time: time.Now()},
	}
}

func TestSpoolWriterWritesAndReplayClearsOnSuccess(t *testing.T) {
	root := t.TempDir()
	w := newSpoolWriter(root)
	require.NoError(t, w.Write(samplePoints()))

	entries, err := os.ReadDir(w.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	store := &fakeStore{}
	ReplayBackups(context.Background(), root, store)

	require.Len(t, store.batches, 1)
	remaining, err := os.ReadDir(w.dir)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestReplayBackupsLeavesFileOnStoreFailure(t *testing.T) {
	root := t.TempDir()
	w := newSpoolWriter(root)
	require.NoError(t, w.Write(samplePoints()))

	store := &fakeStore{failN: 1}
	ReplayBackups(context.Background(), root, store)

	entries, err := os.ReadDir(w.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "failed replay must leave the backup file for the next attempt")
}

func TestReplayBackupsToleratesMissingDirectory(t *testing.T) {
	ReplayBackups(context.Background(), t.TempDir(), &fakeStore{})
}

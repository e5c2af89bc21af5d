package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makePipelineDir(t *testing.T, root, name string, size int, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), make([]byte, size), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
	return dir
}

func TestEnforceDiskQuotaEvictsOldestFirstUntilUnder80Percent(t *testing.T) {
	root := t.TempDir()
	oldest := makePipelineDir(t, root, "oldest", 40<<20, 3*time.Hour)
	makePipelineDir(t, root, "newest", 40<<20, time.Minute)

	// Cap small enough that 80MB total exceeds it, forcing an eviction.
	EnforceDiskQuota(root, 0.05)

	_, err := os.Stat(oldest)
	require.True(t, os.IsNotExist(err), "oldest directory should have been evicted")
}

func TestEnforceDiskQuotaNoopWhenUnderCap(t *testing.T) {
	root := t.TempDir()
	dir := makePipelineDir(t, root, "small", 1024, time.Minute)

	EnforceDiskQuota(root, 10)

	_, err := os.Stat(dir)
	require.NoError(t, err, "directory under quota must not be evicted")
}

func TestEnforceDiskQuotaToleratesMissingRoot(t *testing.T) {
	EnforceDiskQuota(filepath.Join(t.TempDir(), "does-not-exist"), 1)
}

func TestEnforceMaxDaysRemovesOnlyExpiredDirs(t *testing.T) {
	root := t.TempDir()
	expired := makePipelineDir(t, root, "expired", 1024, 10*24*time.Hour)
	fresh := makePipelineDir(t, root, "fresh", 1024, time.Hour)

	EnforceMaxDays(root, 7)

	_, err := os.Stat(expired)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}

func TestEnforceMaxDaysZeroDisablesEnforcement(t *testing.T) {
	root := t.TempDir()
	dir := makePipelineDir(t, root, "ancient", 1024, 365*24*time.Hour)

	EnforceMaxDays(root, 0)

	_, err := os.Stat(dir)
	require.NoError(t, err)
}

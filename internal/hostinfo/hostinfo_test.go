package hostinfo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSampleReadsLiveHostStats(t *testing.T) {
	snap, err := Sample("/")
	require.NoError(t, err)
	require.GreaterOrEqual(t, snap.CPUPercent, 0.0)
	require.GreaterOrEqual(t, snap.MemUsedPct, 0.0)
	require.GreaterOrEqual(t, snap.DiskUsedPct, 0.0)
}

func TestSampleErrorsOnUnreadableDiskPath(t *testing.T) {
	_, err := Sample("/this/path/does/not/exist/anywhere")
	require.Error(t, err)
}

func TestMetricPointCarriesHostLevelTagAndFields(t *testing.T) {
	snap := Snapshot{CPUPercent: 12.5, MemUsedPct: 40, DiskUsedPct: 60}
	now := time.Now()

	p := snap.MetricPoint(now)

	require.Equal(t, "host", p.Measurement)
	require.Equal(t, "host", p.Tags["level"])
	require.Equal(t, 12.5, p.Fields["cpu_percent"])
	require.Equal(t, now, p.Time)
}

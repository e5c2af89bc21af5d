package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMetricsPopulatesEveryField(t *testing.T) {
	m := NewMetrics()

	require.NotNil(t, m.Version)
	require.NotNil(t, m.ActivePipelines)
	require.NotNil(t, m.IdlePipelines)
	require.NotNil(t, m.HealthCheckFailures)
	require.NotNil(t, m.HealthCheckDurationSec)
	require.NotNil(t, m.ForceCleanups)
	require.NotNil(t, m.CommandDurationSec)
	require.NotNil(t, m.CommandErrors)

	require.NotNil(t, m.SinkEnqueued)
	require.NotNil(t, m.SinkDropped)
	require.NotNil(t, m.SinkErrors)
	require.NotNil(t, m.SinkProcessed)

	require.NotNil(t, m.BridgeConsecutiveTimeouts)
	require.NotNil(t, m.BridgeSamplesWritten)

	require.NotNil(t, m.MonitorPollDurationSec)
	require.NotNil(t, m.MonitorBufferSize)
	require.NotNil(t, m.MonitorStoreErrors)
	require.NotNil(t, m.MonitorSpooledBatches)
	require.NotNil(t, m.MonitorDiskEvictions)
}

func TestSinkGaugesAcceptAbsoluteSnapshotValues(t *testing.T) {
	m := NewMetrics()

	// These are gauges, not counters, because each sink owns its own
	// cumulative total already; Set must accept a decreasing value
	// without panicking the way CounterVec.Add(negative) would.
	m.SinkEnqueued.WithLabelValues("buffer", "p1").Set(42)
	m.SinkEnqueued.WithLabelValues("buffer", "p1").Set(10)
}

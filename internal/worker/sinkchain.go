package worker

import (
	"context"
	"time"

	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/descriptor"
	"github.com/livepeer/pipectl/internal/rpc"
	"github.com/livepeer/pipectl/internal/sink"
)

// buildSinkChain assembles the sink chain: a BufferSink is always
// attached; VideoSink and MetricSink are attached only when the
// corresponding descriptor says is_open. All three are composed into
// one MultiSink handed to the pipeline driver's on_prediction callback.
func buildSinkChain(ctx context.Context, pipelineID string, init rpc.InitPayload, t config.Tunables, store sink.TimeSeriesStore) (*sink.MultiSink, *sink.BufferSink, *sink.VideoSink, *sink.MetricSink, error) {
	queueSize := init.BufferSinkQueue
	if queueSize <= 0 {
		queueSize = 64
	}
	buffer := sink.NewBufferSink(ctx, pipelineID, queueSize)
	multi := sink.NewMultiSink(buffer)

	var videoSink *sink.VideoSink
	if init.VideoRecordSink != nil && init.VideoRecordSink.IsOpen {
		cfg := init.VideoRecordSink
		vs, err := sink.NewVideoSink(ctx, pipelineID, sink.VideoSinkConfig{
			OutputDir:       cfg.OutputDir,
			SegmentDuration: secondsToDuration(cfg.SegmentDuration),
			MaxTotalSize:    cfg.MaxTotalSizeByte,
			MaxDiskUsage:    cfg.MaxDiskUsage,
			TargetWidth:     cfg.TargetWidth,
			TargetHeight:    cfg.TargetHeight,
			VideoFieldName:  cfg.VideoFieldName,
			QueueSize:       queueSize,
		})
		if err != nil {
			return nil, nil, nil, nil, err
		}
		videoSink = vs
		multi.Add(vs)
	}

	var metricSink *sink.MetricSink
	if init.VideoMetricsSink != nil && init.VideoMetricsSink.IsOpen {
		cfg := init.VideoMetricsSink
		selectors := make(map[string]descriptor.FieldSelector, len(cfg.FieldSelectors))
		for name, path := range cfg.FieldSelectors {
			selectors[name] = descriptor.FieldSelector(path)
		}
		ms := sink.NewMetricSink(ctx, sink.MetricSinkConfig{
			PipelineID:     pipelineID,
			FieldSelectors: selectors,
			BatchSize:      orDefault(cfg.BatchSize, t.MonitorBatchSize),
			FlushInterval:  secondsToDurationOr(cfg.FlushInterval, t.MonitorFlushInterval),
			QueueSize:      queueSize,
			Store:          store,
		})
		metricSink = ms
		multi.Add(ms)
	}

	return multi, buffer, videoSink, metricSink, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

func secondsToDurationOr(secs float64, def time.Duration) time.Duration {
	if secs <= 0 {
		return def
	}
	return secondsToDuration(secs)
}

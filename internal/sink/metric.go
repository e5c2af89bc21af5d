package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/livepeer/pipectl/internal/descriptor"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// TimeSeriesStore is the narrow interface MetricSink writes batches
// to; the Monitor's store client implements the same interface (see
// internal/monitor).
type TimeSeriesStore interface {
	WriteBatch(ctx context.Context, points []pipelinemodel.MetricPoint) error
}

// MetricSinkConfig configures field selection and batching.
type MetricSinkConfig struct {
	PipelineID     string
	FieldSelectors map[string]descriptor.FieldSelector
	BatchSize      int
	FlushInterval  time.Duration
	QueueSize      int
	Store          TimeSeriesStore // nil => disabled mode
}

// MetricSink batches prediction-derived MetricPoints and flushes them
// to a TimeSeriesStore. If cfg.Store is nil it runs in disabled mode:
// calls are accepted and dropped, never blocking.
type MetricSink struct {
	cfg MetricSinkConfig

	queue  chan pipelinemodel.Batch
	done   chan struct{}
	closed chan struct{}

	mu    sync.Mutex
	batch []pipelinemodel.MetricPoint

	counters counterSet
}

func NewMetricSink(ctx context.Context, cfg MetricSinkConfig) *MetricSink {
	m := &MetricSink{
		cfg:    cfg,
		queue:  make(chan pipelinemodel.Batch, cfg.QueueSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go m.run(ctx)
	startCounterLogger(ctx, "metric", cfg.PipelineID, m.Counters)
	return m
}

func (m *MetricSink) OnPrediction(item pipelinemodel.Batch) {
	if m.cfg.Store == nil {
		// Disabled mode: drop without touching the queue, still
		// counted as enqueued+dropped so invariant 4 holds.
		atomic.AddInt64(&m.counters.enqueued, 1)
		atomic.AddInt64(&m.counters.dropped, 1)
		return
	}
	atomic.AddInt64(&m.counters.enqueued, 1)
	select {
	case m.queue <- item:
	default:
		select {
		case <-m.queue:
			atomic.AddInt64(&m.counters.dropped, 1)
		default:
		}
		select {
		case m.queue <- item:
		default:
			atomic.AddInt64(&m.counters.dropped, 1)
		}
	}
}

func (m *MetricSink) run(ctx context.Context) {
	defer close(m.closed)
	flushInterval := m.cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case item, ok := <-m.queue:
			if !ok {
				m.flush(ctx)
				return
			}
			now := time.Now()
			for _, f := range item.Frames {
				m.mu.Lock()
				m.batch = append(m.batch, m.toPoint(f, now))
				full := m.cfg.BatchSize > 0 && len(m.batch) >= m.cfg.BatchSize
				m.mu.Unlock()
				atomic.AddInt64(&m.counters.processed, 1)
				if full {
					m.flush(ctx)
				}
			}
		case <-ticker.C:
			m.flush(ctx)
		}
	}
}

func (m *MetricSink) toPoint(f pipelinemodel.FrameEnvelope, now time.Time) pipelinemodel.MetricPoint {
	fields := make(map[string]interface{})
	for name, selector := range m.cfg.FieldSelectors {
		raw := predictionAsMap(f.Prediction)
		if v, ok := selector.Resolve(raw); ok && v != nil {
			fields[name] = v
		}
	}
	fields["duration"] = now.Sub(f.FrameTimestamp).Nanoseconds()

	return pipelinemodel.MetricPoint{
		Measurement: "pipeline_inference",
		Tags:        pipelinemodel.NewMetricTags(m.cfg.PipelineID, f.SourceID, pipelinemodel.MetricLevelSource),
		Fields:      fields,
		Time:        now,
	}
}

func predictionAsMap(p pipelinemodel.Prediction) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		if v.Image != nil {
			continue
		}
		out[k] = v.Value
	}
	return out
}

// flush drains the batch and writes it to the store. On error it
// increments the error counter and drops the batch — metrics loss is
// acceptable, "On flush error ... do not re-queue".
func (m *MetricSink) flush(ctx context.Context) {
	m.mu.Lock()
	if len(m.batch) == 0 {
		m.mu.Unlock()
		return
	}
	points := m.batch
	m.batch = nil
	m.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	op := func() error { return m.cfg.Store.WriteBatch(writeCtx, points) }
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 0)); err != nil {
		atomic.AddInt64(&m.counters.errors, int64(len(points)))
		obslog.LogError(m.cfg.PipelineID, "metric sink flush failed", err)
	}
}

func (m *MetricSink) Close(timeout time.Duration) error {
	close(m.queue)
	select {
	case <-m.closed:
	case <-time.After(timeout):
	}
	return nil
}

func (m *MetricSink) Counters() Counters {
	return m.counters.snapshot()
}

// Package sink implements the bounded-queue sink chain attached to
// every worker's pipeline: BufferSink, VideoSink, MetricSink, and the
// MultiSink composite that fans a prediction out to all three.
//
// Every sink obeys the bounded-queue sink contract: OnPrediction is
// called from the pipeline driver's thread and must never block; each
// sink owns a single worker goroutine, a bounded channel, and a drop
// policy.
package sink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/livepeer/pipectl/internal/metrics"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// Registry is the process-wide metrics sink, set once by cmd/pipeline-worker's
// main before any sink is constructed. Nil is fine (tests, and any
// caller that doesn't want Prometheus export) — every site checks it.
var Registry *metrics.Metrics

// DropPolicy controls what OnPrediction does when a sink's queue is full.
type DropPolicy int

const (
	DropOldest DropPolicy = iota
	DropNewest
	Block
)

// Sink is the uniform interface every sink chain member implements.
type Sink interface {
	// OnPrediction enqueues item; it must not block (except Block
	// policy sinks, which may block up to a short internal timeout).
	OnPrediction(item pipelinemodel.Batch)
	// Close flushes and stops the sink's worker goroutine, waiting up
	// to timeout before giving up.
	Close(timeout time.Duration) error
	// Counters returns the sink's enqueued/dropped/errors bookkeeping.
	Counters() Counters
}

// Counters is the per-sink bookkeeping invariant every sink maintains:
// enqueued == processed + dropped + in_queue + errors.
type Counters struct {
	Enqueued int64
	Dropped  int64
	Errors   int64
	Processed int64
}

// counterSet is the atomic backing store shared by all sink
// implementations in this package.
type counterSet struct {
	enqueued  int64
	dropped   int64
	errors    int64
	processed int64
}

func (c *counterSet) snapshot() Counters {
	return Counters{
		Enqueued:  atomic.LoadInt64(&c.enqueued),
		Dropped:   atomic.LoadInt64(&c.dropped),
		Errors:    atomic.LoadInt64(&c.errors),
		Processed: atomic.LoadInt64(&c.processed),
	}
}

// startCounterLogger logs a sink's counters every 30s until ctx is done.
func startCounterLogger(ctx context.Context, name, pipelineID string, counters func() Counters) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c := counters()
				obslog.Log(pipelineID, name+" sink counters",
					"enqueued", c.Enqueued, "dropped", c.Dropped,
					"errors", c.Errors, "processed", c.Processed)
				if Registry != nil {
					Registry.SinkEnqueued.WithLabelValues(name, pipelineID).Set(float64(c.Enqueued))
					Registry.SinkDropped.WithLabelValues(name, pipelineID).Set(float64(c.Dropped))
					Registry.SinkErrors.WithLabelValues(name, pipelineID).Set(float64(c.Errors))
					Registry.SinkProcessed.WithLabelValues(name, pipelineID).Set(float64(c.Processed))
				}
			}
		}
	}()
}

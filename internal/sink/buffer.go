package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// ring is a fixed-capacity ring buffer of prediction batches, with a
// single writer (the sink worker goroutine) and many readers under a
// mutex. Readers pop from the front; the writer overwrites the oldest
// entry when full — exactly the "appends, overwriting oldest when
// full" semantics 
type ring struct {
	mu    sync.Mutex
	items []pipelinemodel.Batch
	cap   int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{cap: capacity}
}

func (r *ring) push(b pipelinemodel.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) >= r.cap {
		r.items = r.items[1:]
	}
	r.items = append(r.items, b)
}

// popN removes and returns up to n items from the front (oldest
// first).
func (r *ring) popN(n int) []pipelinemodel.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.items) {
		n = len(r.items)
	}
	out := r.items[:n]
	r.items = r.items[n:]
	return out
}

// BufferSink maintains two independent rings: one drained by
// CONSUME_RESULT, one drained by the WebRTC bridge — "a slow consumer
// does not affect WebRTC and vice versa" .
type BufferSink struct {
	queueSize int
	policy    DropPolicy

	consumeRing *ring
	webrtcRing  *ring

	queue  chan pipelinemodel.Batch
	done   chan struct{}
	closed chan struct{}

	counters counterSet
}

func NewBufferSink(ctx context.Context, pipelineID string, queueSize int) *BufferSink {
	b := &BufferSink{
		queueSize:   queueSize,
		policy:      DropOldest,
		consumeRing: newRing(queueSize),
		webrtcRing:  newRing(queueSize),
		queue:       make(chan pipelinemodel.Batch, queueSize),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
	}
	go b.run()
	startCounterLogger(ctx, "buffer", pipelineID, b.Counters)
	return b
}

func (b *BufferSink) run() {
	defer close(b.closed)
	for item := range b.queue {
		b.consumeRing.push(item)
		b.webrtcRing.push(item)
		atomic.AddInt64(&b.counters.processed, 1)
	}
}

func (b *BufferSink) OnPrediction(item pipelinemodel.Batch) {
	atomic.AddInt64(&b.counters.enqueued, 1)
	select {
	case b.queue <- item:
	default:
		// drop_oldest (default): make room by taking the channel's
		// head, then retry once.
		select {
		case <-b.queue:
			atomic.AddInt64(&b.counters.dropped, 1)
		default:
		}
		select {
		case b.queue <- item:
		default:
			atomic.AddInt64(&b.counters.dropped, 1)
		}
	}
}

// ConsumeN pops up to n items from the consume-side ring — the data
// source for CONSUME_RESULT.
func (b *BufferSink) ConsumeN(n int) []pipelinemodel.Batch {
	return b.consumeRing.popN(n)
}

// WebRTCDrain pops up to n items from the webrtc-side ring — the data
// source for the WebRTC bridge's frame-merger.
func (b *BufferSink) WebRTCDrain(n int) []pipelinemodel.Batch {
	return b.webrtcRing.popN(n)
}

func (b *BufferSink) Close(timeout time.Duration) error {
	close(b.queue)
	select {
	case <-b.closed:
	case <-time.After(timeout):
	}
	return nil
}

func (b *BufferSink) Counters() Counters {
	return b.counters.snapshot()
}

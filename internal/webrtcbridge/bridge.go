package webrtcbridge

import (
	"context"
	"time"

	"github.com/livepeer/pipectl/internal/metrics"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// Registry is the process-wide metrics sink, set once by
// cmd/pipeline-worker's main. Nil is fine (tests) — every site checks it.
var Registry *metrics.Metrics

// FrameSource is the narrow view of a BufferSink's webrtc-side ring
// the bridge drains from — see internal/sink.BufferSink.WebRTCDrain.
type FrameSource interface {
	WebRTCDrain(n int) []pipelinemodel.Batch
}

// Config configures one bridge instance.
type Config struct {
	PipelineID            string
	ViewerID               string
	StreamOutput           string
	Layout                 Layout
	TickInterval           time.Duration
	ProcessingTimeout      time.Duration
	MaxConsecutiveTimeouts int
	MinConsecutiveOnTime   int
	TargetFPS              float64
}

// Bridge ties together a Session (peer connection + track), an
// annexBEncoder, and the frame-merger coroutine. One Bridge instance
// serves one viewer of one pipeline.
type Bridge struct {
	cfg     Config
	session *Session
	source  FrameSource
	encoder *annexBEncoder

	consecutiveTimeouts int
	consecutiveOnTime   int
	lastGoodFrame       *pipelinemodel.WorkflowImage
}

// NewBridge wraps an already-negotiated session, starts the encoder
// and the frame-merger loop, and returns the running Bridge.
func NewBridge(ctx context.Context, cfg Config, session *Session, source FrameSource, width, height int) (*Bridge, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 33 * time.Millisecond
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 100 * time.Millisecond
	}
	if cfg.MaxConsecutiveTimeouts <= 0 {
		cfg.MaxConsecutiveTimeouts = 30
	}
	if cfg.MinConsecutiveOnTime <= 0 {
		cfg.MinConsecutiveOnTime = 5
	}
	fps := cfg.TargetFPS
	if fps <= 0 {
		fps = 30
	}

	enc, err := newAnnexBEncoder(cfg.PipelineID, width, height, fps)
	if err != nil {
		return nil, err
	}

	b := &Bridge{cfg: cfg, session: session, source: source, encoder: enc}
	go enc.Run(func(data []byte, dur time.Duration) {
		if err := session.WriteSample(data, dur); err != nil {
			obslog.LogError(cfg.PipelineID, "webrtc write sample failed", err, "viewer_id", cfg.ViewerID)
		}
	})
	go b.run(ctx)
	return b, nil
}

// run is the frame-merger coroutine : while stop_event
// is not set, drain one batch from the webrtc ring per tick, select
// the configured stream output per source, merge into one composite,
// and push it through the encoder to the track.
func (b *Bridge) run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()
	defer b.encoder.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.session.StopEvent():
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *Bridge) tick() {
	drainCtx, cancel := context.WithTimeout(context.Background(), b.cfg.ProcessingTimeout)
	defer cancel()

	batches := b.drainWithTimeout(drainCtx)
	if len(batches) == 0 {
		b.onTimeout()
		return
	}
	b.onOnTime()

	var images []*pipelinemodel.WorkflowImage
	for _, batch := range batches {
		for _, f := range batch.Frames {
			images = append(images, b.selectStreamOutput(f))
		}
	}
	if len(images) == 0 {
		return
	}
	merged := Merge(b.cfg.Layout, images)
	if b.consecutiveTimeouts >= b.cfg.MaxConsecutiveTimeouts {
		slowOverlay(merged)
	}
	b.lastGoodFrame = merged
	if err := b.encoder.WriteFrame(merged); err != nil {
		obslog.LogError(b.cfg.PipelineID, "webrtc encoder write failed", err, "viewer_id", b.cfg.ViewerID)
	} else if Registry != nil {
		Registry.BridgeSamplesWritten.WithLabelValues(b.cfg.PipelineID, b.cfg.ViewerID).Inc()
	}
}

// drainWithTimeout polls the ring until it yields a batch or the
// per-tick processing_timeout elapses, mirroring recv()'s bounded
// wait on the async frame queue.
func (b *Bridge) drainWithTimeout(ctx context.Context) []pipelinemodel.Batch {
	poll := time.NewTicker(2 * time.Millisecond)
	defer poll.Stop()
	for {
		if batches := b.source.WebRTCDrain(1); len(batches) > 0 {
			return batches
		}
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
		}
	}
}

func (b *Bridge) onTimeout() {
	b.consecutiveTimeouts++
	b.consecutiveOnTime = 0
	if Registry != nil {
		Registry.BridgeConsecutiveTimeouts.WithLabelValues(b.cfg.PipelineID, b.cfg.ViewerID).Set(float64(b.consecutiveTimeouts))
	}
	if b.consecutiveTimeouts >= b.cfg.MaxConsecutiveTimeouts && b.lastGoodFrame != nil {
		frame := *b.lastGoodFrame
		frame.Pix = append([]byte(nil), b.lastGoodFrame.Pix...)
		slowOverlay(&frame)
		if err := b.encoder.WriteFrame(&frame); err != nil {
			obslog.LogError(b.cfg.PipelineID, "webrtc slow overlay write failed", err, "viewer_id", b.cfg.ViewerID)
		}
	}
}

func (b *Bridge) onOnTime() {
	b.consecutiveOnTime++
	if b.consecutiveOnTime >= b.cfg.MinConsecutiveOnTime {
		b.consecutiveTimeouts = 0
		if Registry != nil {
			Registry.BridgeConsecutiveTimeouts.WithLabelValues(b.cfg.PipelineID, b.cfg.ViewerID).Set(0)
		}
	}
}

// selectStreamOutput extracts the configured stream_output
// visualization, falling back to any WorkflowImage in the prediction,
// then the raw input frame — "Frame extraction".
func (b *Bridge) selectStreamOutput(f pipelinemodel.FrameEnvelope) *pipelinemodel.WorkflowImage {
	if b.cfg.StreamOutput != "" {
		if pv, ok := f.Prediction[b.cfg.StreamOutput]; ok && pv.Image != nil {
			return pv.Image
		}
	}
	for _, pv := range f.Prediction {
		if pv.Image != nil {
			return pv.Image
		}
	}
	return f.Image
}

// Close tears the session down, which closes the stop channel the
// event loop watches.
func (b *Bridge) Close() {
	b.session.Close()
}

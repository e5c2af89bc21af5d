package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
	"github.com/livepeer/pipectl/internal/rpc"
	"github.com/livepeer/pipectl/internal/sink"
	"github.com/livepeer/pipectl/internal/webrtcbridge"
)

// Worker owns one pipeline: its driver, sink chain, and optional
// WebRTC bridges. Commands arrive from the dispatcher while the frame
// pump and the consumption-timeout watcher run on goroutines of their
// own; state, lastConsumeAt and the bridge map are guarded by mu.
type Worker struct {
	PipelineID string
	tunables   config.Tunables

	mu     sync.Mutex
	state  pipelinemodel.State
	driver FrameProducer

	multi  *sink.MultiSink
	buffer *sink.BufferSink
	video  *sink.VideoSink
	metric *sink.MetricSink

	bridges map[string]*webrtcbridge.Bridge

	lastConsumeAt time.Time
	pumpCancel    context.CancelFunc
	pumpDone      chan struct{}

	spool *resultsSpool
}

// NewWorker validates and applies an INIT command, building the full
// sink chain and starting the frame pump. newDriver constructs the
// FrameProducer for this pipeline from the INIT payload.
func NewWorker(ctx context.Context, pipelineID string, init rpc.InitPayload, t config.Tunables, store sink.TimeSeriesStore, newDriver func(rpc.InitPayload) (FrameProducer, error), spoolDir string) (*Worker, error) {
	if err := descriptorValidate(init); err != nil {
		return nil, err
	}

	multi, buffer, video, metric, err := buildSinkChain(ctx, pipelineID, init, t, store)
	if err != nil {
		return nil, apierrors.NewOperationError("failed to build sink chain", err)
	}

	driver, err := newDriver(init)
	if err != nil {
		return nil, apierrors.NewOperationError("failed to start pipeline driver", err)
	}

	w := &Worker{
		PipelineID:    pipelineID,
		tunables:      t,
		state:         pipelinemodel.StateInitialising,
		driver:        driver,
		multi:         multi,
		buffer:        buffer,
		video:         video,
		metric:        metric,
		bridges:       make(map[string]*webrtcbridge.Bridge),
		lastConsumeAt: time.Now(),
		spool:         newResultsSpool(spoolDir, pipelineID),
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	w.pumpCancel = cancel
	w.pumpDone = make(chan struct{})
	w.setState(pipelinemodel.StateRunning)
	go w.pump(pumpCtx)
	go w.watchConsumptionTimeout(pumpCtx)

	return w, nil
}

func descriptorValidate(init rpc.InitPayload) error {
	if len(init.VideoReference) == 0 {
		return apierrors.NewInvalidPayload("video_reference must be non-empty", nil)
	}
	return nil
}

func (w *Worker) setState(s pipelinemodel.State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransition(s) && w.state != s {
		obslog.Log(w.PipelineID, "ignoring illegal state transition", "from", w.state, "to", s)
		return
	}
	w.state = s
}

func (w *Worker) State() pipelinemodel.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// pump is the single-threaded cooperative frame loop: pull one
// FrameEnvelope, group it into a one-frame Batch, and hand it to the
// sink chain. One frame at a time, 
func (w *Worker) pump(ctx context.Context) {
	defer close(w.pumpDone)
	for {
		if w.State() == pipelinemodel.StateMuted {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		frame, ok, err := w.driver.Next(ctx)
		if err != nil {
			obslog.LogError(w.PipelineID, "pipeline driver error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		if !ok {
			if pipelinemodel.AllSourcesDrained(w.driver.Sources()) {
				w.setState(pipelinemodel.StateDraining)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}

		w.multi.OnPrediction(pipelinemodel.Batch{Frames: []pipelinemodel.FrameEnvelope{frame}})

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// watchConsumptionTimeout self-terminates the worker if consumption_timeout
// elapses with no CONSUME_RESULT call, preventing orphan pipelines
// whose owning client has disappeared — 
func (w *Worker) watchConsumptionTimeout(ctx context.Context) {
	timeout := w.tunables.ConsumptionTimeout
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			idle := time.Since(w.lastConsumeAt)
			w.mu.Unlock()
			if idle >= timeout {
				obslog.Log(w.PipelineID, "consumption timeout exceeded, self-terminating")
				w.Terminate(ctx)
				return
			}
		}
	}
}

// ConsumeResult implements the CONSUME_RESULT command.
func (w *Worker) ConsumeResult(excludedFields []string) rpc.ConsumeResultResponse {
	w.mu.Lock()
	w.lastConsumeAt = time.Now()
	w.mu.Unlock()

	batches := w.buffer.ConsumeN(1)
	resp := rpc.ConsumeResultResponse{
		Outputs:        make([]json.RawMessage, 0, len(batches)),
		FramesMetadata: make([]json.RawMessage, 0, len(batches)),
	}
	for _, b := range batches {
		for _, f := range b.Frames {
			filtered := filterFields(f.Prediction, excludedFields)
			raw, err := json.Marshal(filtered)
			if err != nil {
				continue
			}
			meta, _ := json.Marshal(map[string]interface{}{
				"source_id": f.SourceID,
				"frame_id":  f.FrameID,
				"timestamp": f.FrameTimestamp,
			})
			resp.Outputs = append(resp.Outputs, raw)
			resp.FramesMetadata = append(resp.FramesMetadata, meta)
		}
	}
	w.spool.Append(batches)
	return resp
}

func filterFields(p pipelinemodel.Prediction, excluded []string) map[string]interface{} {
	skip := make(map[string]bool, len(excluded))
	for _, f := range excluded {
		skip[f] = true
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		if skip[k] || v.Image != nil {
			continue
		}
		out[k] = v.Value
	}
	return out
}

// Status implements the STATUS command.
func (w *Worker) Status() rpc.StatusPayload {
	sources := w.driver.Sources()
	metas := make([]rpc.SourceMetadata, 0, len(sources))
	for _, s := range sources {
		metas = append(metas, rpc.SourceMetadata{SourceID: s.SourceID, State: string(s.State)})
	}
	counters := w.multi.Counters()
	throughput := 0.0
	if counters.Processed > 0 {
		throughput = float64(counters.Processed)
	}
	return rpc.StatusPayload{
		SourcesMetadata:     metas,
		InferenceThroughput: throughput,
	}
}

// Mute/Resume implement the MUTE/RESUME commands.
func (w *Worker) Mute() {
	w.driver.Mute()
	w.setState(pipelinemodel.StateMuted)
}

func (w *Worker) Resume() {
	w.driver.Resume()
	w.setState(pipelinemodel.StateRunning)
}

// Offer implements the OFFER (WebRTC) command: creates a Session and a
// frame-merger Bridge draining the BufferSink's webrtc-side ring.
func (w *Worker) Offer(ctx context.Context, viewerID string, payload rpc.OfferPayload, width, height int, fps float64) (rpc.OfferResponse, error) {
	session, answerSDP, err := webrtcbridge.NewSession(w.PipelineID, viewerID, nil, payload.SDP)
	if err != nil {
		return rpc.OfferResponse{}, apierrors.NewOperationError("failed to establish webrtc session", err)
	}
	bridge, err := webrtcbridge.NewBridge(ctx, webrtcbridge.Config{
		PipelineID:             w.PipelineID,
		ViewerID:               viewerID,
		StreamOutput:           payload.StreamOutput,
		Layout:                 webrtcbridge.LayoutGrid,
		ProcessingTimeout:      w.tunables.ProcessingTimeout,
		MaxConsecutiveTimeouts: w.tunables.MaxConsecutiveTimeouts,
		MinConsecutiveOnTime:   w.tunables.MinConsecutiveOnTime,
		TargetFPS:              fps,
	}, session, w.buffer, width, height)
	if err != nil {
		session.Close()
		return rpc.OfferResponse{}, apierrors.NewOperationError("failed to start webrtc bridge", err)
	}

	w.mu.Lock()
	w.bridges[viewerID] = bridge
	w.mu.Unlock()

	return rpc.OfferResponse{SDP: answerSDP}, nil
}

// Terminate tears the worker down: stop the frame pump, close every
// bridge, close the sink chain, close the driver. Best-effort and
// idempotent; errors are logged, not propagated, mirroring the
// Supervisor's three-phase termination's "always remove row" contract.
func (w *Worker) Terminate(ctx context.Context) {
	w.setState(pipelinemodel.StateTerminating)
	if w.pumpCancel != nil {
		w.pumpCancel()
	}
	select {
	case <-w.pumpDone:
	case <-time.After(5 * time.Second):
	}

	w.mu.Lock()
	bridges := make([]*webrtcbridge.Bridge, 0, len(w.bridges))
	for _, b := range w.bridges {
		bridges = append(bridges, b)
	}
	w.bridges = map[string]*webrtcbridge.Bridge{}
	w.mu.Unlock()
	for _, b := range bridges {
		b.Close()
	}

	if err := w.multi.Close(5 * time.Second); err != nil {
		obslog.LogError(w.PipelineID, "sink chain close failed", err)
	}
	if err := w.driver.Close(); err != nil {
		obslog.LogError(w.PipelineID, "pipeline driver close failed", err)
	}
	w.setState(pipelinemodel.StateTerminated)
}

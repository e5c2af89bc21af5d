package worker

import (
	"context"
	"encoding/json"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/descriptor"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/rpc"
	"github.com/livepeer/pipectl/internal/sink"
)

// Dispatcher wires one worker process's net.Conn to the Worker's
// methods. A process hosts exactly one pipeline: the first frame it
// receives must be INIT, after which every other command targets that
// pipeline — the Supervisor process, by contrast, fans commands out
// across many such dispatchers (see internal/supervisor).
type Dispatcher struct {
	tunables  config.Tunables
	newDriver func(rpc.InitPayload) (FrameProducer, error)
	store     sink.TimeSeriesStore
	spoolDir  string
	videoFPS  float64
	videoW    int
	videoH    int

	w *Worker
}

func NewDispatcher(t config.Tunables, newDriver func(rpc.InitPayload) (FrameProducer, error), store sink.TimeSeriesStore, spoolDir string) *Dispatcher {
	return &Dispatcher{tunables: t, newDriver: newDriver, store: store, spoolDir: spoolDir, videoFPS: 30, videoW: 1280, videoH: 720}
}

// Handle implements rpc.Handler.
func (d *Dispatcher) Handle(ctx context.Context, env rpc.Envelope) rpc.Response {
	resp, err := d.dispatch(ctx, env)
	if err != nil {
		apiErr, ok := err.(apierrors.APIError)
		if !ok {
			apiErr = apierrors.NewInternalError("unexpected error", err)
		}
		we := apiErr.ToWireError()
		return rpc.Response{RequestID: env.RequestID, PipelineID: env.PipelineID, Error: &we}
	}
	raw, merr := json.Marshal(resp)
	if merr != nil {
		we := apierrors.NewInternalError("failed to marshal response", merr).ToWireError()
		return rpc.Response{RequestID: env.RequestID, PipelineID: env.PipelineID, Error: &we}
	}
	return rpc.Response{RequestID: env.RequestID, PipelineID: env.PipelineID, Response: raw}
}

func (d *Dispatcher) dispatch(ctx context.Context, env rpc.Envelope) (interface{}, error) {
	if env.Type == rpc.CommandInit {
		return d.handleInit(ctx, env)
	}
	if d.w == nil {
		return nil, apierrors.NewNotFound("pipeline not initialised", nil)
	}

	switch env.Type {
	case rpc.CommandStatus:
		return d.w.Status(), nil
	case rpc.CommandMute:
		d.w.Mute()
		return struct{}{}, nil
	case rpc.CommandResume:
		d.w.Resume()
		return struct{}{}, nil
	case rpc.CommandConsumeResult:
		var payload rpc.ConsumeResultPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				return nil, apierrors.NewInvalidPayload("malformed CONSUME_RESULT payload", err)
			}
		}
		return d.w.ConsumeResult(payload.ExcludedFields), nil
	case rpc.CommandOffer:
		var payload rpc.OfferPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, apierrors.NewInvalidPayload("malformed OFFER payload", err)
		}
		return d.w.Offer(ctx, env.RequestID, payload, d.videoW, d.videoH, d.videoFPS)
	case rpc.CommandTerminate:
		d.w.Terminate(ctx)
		return struct{}{}, nil
	default:
		return nil, apierrors.NewInvalidPayload("unknown command type", nil)
	}
}

func (d *Dispatcher) handleInit(ctx context.Context, env rpc.Envelope) (interface{}, error) {
	if d.w != nil {
		return nil, apierrors.NewOperationError("pipeline already initialised in this process", nil)
	}
	if err := descriptor.ValidateInit(env.Payload); err != nil {
		return nil, err
	}
	var init rpc.InitPayload
	if err := json.Unmarshal(env.Payload, &init); err != nil {
		return nil, apierrors.NewInvalidPayload("malformed INIT payload", err)
	}

	w, err := NewWorker(ctx, env.PipelineID, init, d.tunables, d.store, d.newDriver, d.spoolDir)
	if err != nil {
		return nil, err
	}
	d.w = w

	obslog.Log(env.PipelineID, "pipeline initialised")
	return rpc.InitResponse{PipelineID: env.PipelineID}, nil
}

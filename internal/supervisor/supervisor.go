package supervisor

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
	"github.com/livepeer/pipectl/internal/rpc"
	"github.com/livepeer/pipectl/internal/timedmutex"
)

// Spawner constructs a new worker process and returns a ManagedWorker
// ready to insert into the table — the INIT path, and the warm-pool's
// refill path, both flow through it.
type Spawner func(ctx context.Context) (*ManagedWorker, error)

// Supervisor is the orchestrator's front door: it accepts client
// connections on a length-prefixed socket, dispatches LIST/INIT
// directly, and routes every other command through Router. The
// health-check and warm-pool loops run alongside it.
type Supervisor struct {
	table   *Table
	router  *Router
	t       config.Tunables
	spawner Spawner
	health  *HealthLoop
	pool    *WarmPool
}

func New(t config.Tunables, spawner Spawner, ramSampler func(int) (int64, error)) *Supervisor {
	table := NewTable()
	router := NewRouter(table, t)
	s := &Supervisor{table: table, router: router, t: t, spawner: spawner}
	s.health = NewHealthLoop(table, router, t, func(id string) { ForceCleanup(table, id) }, ramSampler)
	s.pool = NewWarmPool(table, t, spawner)
	return s
}

// Run starts the background loops and serves client connections on l
// until ctx is cancelled, then runs the termination protocol.
func (s *Supervisor) Run(ctx context.Context, l net.Listener) error {
	go s.health.Run(ctx)
	go s.pool.Run(ctx)

	err := rpc.Serve(ctx, l, s.Handle)

	Shutdown(s.table, s.t)
	return err
}

// Handle implements rpc.Handler for the client-facing socket.
func (s *Supervisor) Handle(ctx context.Context, env rpc.Envelope) rpc.Response {
	raw, err := s.dispatch(ctx, env)
	if err != nil {
		apiErr, ok := err.(apierrors.APIError)
		if !ok {
			apiErr = apierrors.NewInternalError("unexpected error", err)
		}
		we := apiErr.ToWireError()
		return rpc.Response{RequestID: env.RequestID, PipelineID: env.PipelineID, Error: &we}
	}
	return rpc.Response{RequestID: env.RequestID, PipelineID: env.PipelineID, Response: raw}
}

func (s *Supervisor) dispatch(ctx context.Context, env rpc.Envelope) ([]byte, error) {
	switch env.Type {
	case rpc.CommandListPipelines:
		return json.Marshal(rpc.ListPipelinesResponse{PipelineIDs: s.table.List()})
	case rpc.CommandInit:
		return s.handleInit(ctx, env)
	default:
		return s.router.Route(env.PipelineID, string(env.Type), env.Payload)
	}
}

func (s *Supervisor) handleInit(ctx context.Context, env rpc.Envelope) ([]byte, error) {
	w, ok := s.claimIdle()
	if !ok {
		spawned, err := s.spawner(ctx)
		if err != nil {
			return nil, apierrors.NewInternalError("failed to start worker process", err)
		}
		w = spawned
	}

	pipelineID := uuid.NewString()
	w.PipelineID = pipelineID
	w.IsIdle = false
	s.table.Insert(w)

	requestID := uuid.NewString()
	_, wireErr, err := w.Conn.SendCommand(requestID, string(rpc.CommandInit), pipelineID, env.Payload, s.t.QueueTimeout)
	if err != nil {
		s.table.Remove(pipelineID)
		return nil, apierrors.NewInternalError("failed to initialise worker", err)
	}
	if wireErr != nil {
		s.table.Remove(pipelineID)
		return nil, apierrors.New(apierrors.ErrorType(wireErr.ErrorType), wireErr.PublicErrorMessage, nil)
	}

	obslog.Log(pipelineID, "pipeline initialised")
	return json.Marshal(rpc.InitResponse{PipelineID: pipelineID})
}

// claimIdle takes one idle, unmarked worker from the warm pool if one
// is available.
func (s *Supervisor) claimIdle() (*ManagedWorker, bool) {
	for _, w := range s.table.Snapshot() {
		if !w.IsIdle {
			continue
		}
		if h, ok := s.table.Health(w.PipelineID); ok && h.MarkedForRemoval {
			continue
		}
		s.table.Remove(w.PipelineID)
		return w, true
	}
	return nil, false
}

// NewManagedWorker wraps a freshly spawned WorkerConn into a
// ManagedWorker ready for the table, used by both the INIT path's
// direct spawn and the warm pool's Spawner.
func NewManagedWorker(pipelineID string, conn WorkerConn) *ManagedWorker {
	return &ManagedWorker{
		PipelineID:    pipelineID,
		Conn:          conn,
		OperationLock: timedmutex.New(),
		RAMSamples:    pipelinemodel.NewRAMRing(60),
		CreatedAt:     time.Now(),
	}
}

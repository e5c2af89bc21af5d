package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/rpc"
)

// ForceCleanup runs a best-effort sequence: terminate -> 1s wait ->
// kill -> remove table row -> drop health entry. Never panics; every
// error is logged instead.
func ForceCleanup(table *Table, pipelineID string) {
	w, ok := table.Get(pipelineID)
	if !ok {
		return
	}
	if err := w.Conn.Terminate(); err != nil {
		obslog.LogError(pipelineID, "force-cleanup terminate failed", err)
	}
	time.Sleep(1 * time.Second)
	if w.Conn.Alive() {
		if err := w.Conn.Kill(); err != nil {
			obslog.LogError(pipelineID, "force-cleanup kill failed", err)
		}
	}
	table.Remove(pipelineID)
	if Registry != nil {
		Registry.ForceCleanups.Inc()
	}
}

// Shutdown runs the three-phase termination protocol: mark and
// terminate every pipeline, wait out the grace period, then kill and
// join any stragglers.
func Shutdown(table *Table, t config.Tunables) {
	workers := table.Snapshot()

	// Phase 1: mark + terminate every pipeline.
	table.MarkAllForRemoval()
	for _, w := range workers {
		requestID := uuid.NewString()
		if _, _, err := w.Conn.SendCommand(requestID, string(rpc.CommandTerminate), w.PipelineID, nil, t.QueueTimeout); err != nil {
			obslog.LogError(w.PipelineID, "shutdown terminate command failed", err)
		}
	}

	// Phase 2: grace period.
	time.Sleep(t.TerminationGracePeriod)

	// Phase 3: kill stragglers, joining each with its own watchdog
	// timeout so one stuck process can't block the whole teardown;
	// always remove the row regardless of join outcome.
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *ManagedWorker) {
			defer wg.Done()
			if w.Conn.Alive() {
				if err := w.Conn.Kill(); err != nil {
					obslog.LogError(w.PipelineID, "shutdown kill failed", err)
				}
			}
			if err := w.Conn.Join(t.ProcessJoinTimeout); err != nil {
				obslog.LogError(w.PipelineID, "shutdown join failed", err)
			}
			table.Remove(w.PipelineID)
		}(w)
	}
	wg.Wait()
}

// WarmPool maintains N idle workers, spawning replacements as they're
// claimed by incoming INIT commands.
type WarmPool struct {
	table  *Table
	t      config.Tunables
	spawn  func(ctx context.Context) (*ManagedWorker, error)
}

func NewWarmPool(table *Table, t config.Tunables, spawn func(context.Context) (*ManagedWorker, error)) *WarmPool {
	return &WarmPool{table: table, t: t, spawn: spawn}
}

func (p *WarmPool) Run(ctx context.Context) {
	if p.t.WarmPoolSize <= 0 {
		return
	}
	interval := p.t.WarmPoolInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.topUp(ctx)
		}
	}
}

func (p *WarmPool) topUp(ctx context.Context) {
	deficit := p.t.WarmPoolSize - p.table.CountIdle()
	for i := 0; i < deficit; i++ {
		w, err := p.spawn(ctx)
		if err != nil {
			obslog.LogNoID("warm pool spawn failed", "err", err.Error())
			return
		}
		if w.PipelineID == "" {
			// Idle workers still need a distinct table key; INIT
			// rebinds it to the server-assigned pipeline id on claim.
			w.PipelineID = uuid.NewString()
		}
		w.IsIdle = true
		p.table.Insert(w)
	}
}

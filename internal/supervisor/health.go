package supervisor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/metrics"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
	"github.com/livepeer/pipectl/internal/rpc"
)

// Registry is the process-wide metrics sink, set once by cmd/pipectl's
// main. Nil is fine (tests) — every site checks it.
var Registry *metrics.Metrics

// HealthLoop runs the health-check loop: sample RAM, poll STATUS
// through the normal command path, detect drained pipelines, and
// schedule force-cleanup for dead or failing workers.
type HealthLoop struct {
	table   *Table
	router  *Router
	t       config.Tunables
	cleanup func(pipelineID string)
	ram     func(pid int) (int64, error)
}

func NewHealthLoop(table *Table, router *Router, t config.Tunables, cleanup func(string), ramSampler func(int) (int64, error)) *HealthLoop {
	if ramSampler == nil {
		ramSampler = sampleRSS
	}
	return &HealthLoop{table: table, router: router, t: t, cleanup: cleanup, ram: ramSampler}
}

func (h *HealthLoop) Run(ctx context.Context) {
	interval := h.t.HealthCheckInterval
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
			h.sweep(ctx)
		}
	}
}

func (h *HealthLoop) sweep(ctx context.Context) {
	start := time.Now()
	workers := h.table.Snapshot()

	if Registry != nil {
		active, idle := 0, 0
		for _, w := range workers {
			if w.IsIdle {
				idle++
			} else {
				active++
			}
		}
		Registry.ActivePipelines.Set(float64(active))
		Registry.IdlePipelines.Set(float64(idle))
	}

	var toCleanup []string
	for _, w := range workers {
		health, ok := h.table.Health(w.PipelineID)
		if !ok || health.MarkedForRemoval || w.IsIdle {
			continue
		}

		if !w.Conn.Alive() {
			toCleanup = append(toCleanup, w.PipelineID)
			continue
		}

		if bytes, err := h.ram(w.Conn.PID()); err == nil {
			w.RAMSamples.Append(pipelinemodel.RAMSample{At: time.Now(), Bytes: bytes})
		}

		statusStart := time.Now()
		status, err := h.pollStatus(w.PipelineID)
		failed := err != nil || time.Since(statusStart) > h.t.HealthCheckTimeout
		if failed {
			n := h.table.IncrementFailures(w.PipelineID)
			obslog.LogError(w.PipelineID, "health check failed", err, "consecutive_failures", n)
			if Registry != nil {
				Registry.HealthCheckFailures.WithLabelValues(w.PipelineID).Inc()
			}
			if n >= h.t.MaxHealthFailures {
				toCleanup = append(toCleanup, w.PipelineID)
			}
			continue
		}
		h.table.ResetFailures(w.PipelineID)

		if len(status.SourcesMetadata) > 0 && allSourcesDrained(status.SourcesMetadata) {
			go h.terminateAsync(w.PipelineID)
		}
	}

	for _, id := range toCleanup {
		h.cleanup(id)
	}

	elapsed := time.Since(start)
	if Registry != nil {
		Registry.HealthCheckDurationSec.Observe(elapsed.Seconds())
	}
	if elapsed > 5*time.Second {
		obslog.LogNoID("health check sweep exceeded budget", "elapsed", elapsed.String())
	}
}

func allSourcesDrained(metas []rpc.SourceMetadata) bool {
	statuses := make([]pipelinemodel.SourceStatus, len(metas))
	for i, m := range metas {
		statuses[i] = pipelinemodel.SourceStatus{SourceID: m.SourceID, State: pipelinemodel.SourceState(m.State)}
	}
	return pipelinemodel.AllSourcesDrained(statuses)
}

func (h *HealthLoop) pollStatus(pipelineID string) (rpc.StatusPayload, error) {
	raw, err := h.router.Route(pipelineID, string(rpc.CommandStatus), nil)
	if err != nil {
		return rpc.StatusPayload{}, err
	}
	var status rpc.StatusPayload
	if err := json.Unmarshal(raw, &status); err != nil {
		return rpc.StatusPayload{}, err
	}
	return status, nil
}

func (h *HealthLoop) terminateAsync(pipelineID string) {
	h.table.MarkForRemoval(pipelineID)
	requestID := uuid.NewString()
	if w, ok := h.table.Get(pipelineID); ok {
		_, _, _ = w.Conn.SendCommand(requestID, string(rpc.CommandTerminate), pipelineID, nil, h.t.QueueTimeout)
	}
	h.cleanup(pipelineID)
}

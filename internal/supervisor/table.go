// Package supervisor implements the pipeline supervisor: the
// ProcessesTable + PipelineHealth maps, command routing, health-check
// loop, three-phase termination, and warm-pool maintenance. The table
// is a pair of maps (worker rows and health rows) keyed by pipeline id
// and guarded by one mutex.
package supervisor

import (
	"sync"
	"time"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
	"github.com/livepeer/pipectl/internal/timedmutex"
)

// ManagedWorker is one ProcessesTable row, 
type ManagedWorker struct {
	PipelineID     string
	Conn           WorkerConn
	OperationLock  *timedmutex.Mutex
	RAMSamples     *pipelinemodel.RAMRing
	IsIdle         bool
	CreatedAt      time.Time
}

// WorkerConn is the narrow handle to a child worker process the
// supervisor drives commands through — an rpc.Client plus liveness and
// process-control hooks, implemented in internal/supervisor/process.go.
type WorkerConn interface {
	Alive() bool
	PID() int
	Terminate() error
	Kill() error
	Join(timeout time.Duration) error
	SendCommand(requestID string, commandType string, pipelineID string, payload []byte, timeout time.Duration) ([]byte, *WireErr, error)
}

// WireErr mirrors apierrors.WireError without importing it here, kept
// minimal so WorkerConn stays a narrow interface.
type WireErr struct {
	ErrorType          string
	PublicErrorMessage string
}

// Health is one PipelineHealth row, 
type Health struct {
	Failures          int
	LastCheck         time.Time
	MarkedForRemoval  bool
}

// Table is the ProcessesTable + PipelineHealth pair, guarded by one
// coarse mutex — reads/writes are brief (map lookups, pointer
// assignments); the expensive work (RPC calls) always happens after
// releasing the lock, "Supervisor owns the table row
// but never touches in-worker state directly."
type Table struct {
	mu      sync.Mutex
	workers map[string]*ManagedWorker
	health  map[string]*Health
}

func NewTable() *Table {
	return &Table{
		workers: make(map[string]*ManagedWorker),
		health:  make(map[string]*Health),
	}
}

func (t *Table) Insert(w *ManagedWorker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workers[w.PipelineID] = w
	t.health[w.PipelineID] = &Health{LastCheck: time.Now()}
}

func (t *Table) Get(pipelineID string) (*ManagedWorker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.workers[pipelineID]
	return w, ok
}

func (t *Table) Health(pipelineID string) (*Health, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.health[pipelineID]
	return h, ok
}

func (t *Table) Remove(pipelineID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.workers, pipelineID)
	delete(t.health, pipelineID)
}

// Snapshot returns a point-in-time copy of the worker list, safe to
// range over without holding the table lock — the health-check loop's
// "snapshot under lock, then release" contract.
func (t *Table) Snapshot() []*ManagedWorker {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*ManagedWorker, 0, len(t.workers))
	for _, w := range t.workers {
		out = append(out, w)
	}
	return out
}

func (t *Table) List() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.workers))
	for id := range t.workers {
		out = append(out, id)
	}
	return out
}

func (t *Table) CountIdle() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, w := range t.workers {
		h := t.health[w.PipelineID]
		if w.IsIdle && (h == nil || !h.MarkedForRemoval) {
			n++
		}
	}
	return n
}

// MarkAllForRemoval sets marked_for_removal on every row, for phase 1 of
// termination.
func (t *Table) MarkAllForRemoval() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.health {
		h.MarkedForRemoval = true
	}
}

func (t *Table) MarkForRemoval(pipelineID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.health[pipelineID]; ok {
		h.MarkedForRemoval = true
	}
}

func (t *Table) IncrementFailures(pipelineID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.health[pipelineID]
	if !ok {
		return 0
	}
	h.Failures++
	h.LastCheck = time.Now()
	return h.Failures
}

func (t *Table) ResetFailures(pipelineID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.health[pipelineID]; ok {
		h.Failures = 0
		h.LastCheck = time.Now()
	}
}

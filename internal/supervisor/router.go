package supervisor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/obslog"
)

// Router implements the command-routing algorithm over a Table of
// workers: lookup, removal check, timed lock, timed dispatch, and
// response matching with retry.
type Router struct {
	table *Table
	t     config.Tunables
}

func NewRouter(table *Table, t config.Tunables) *Router {
	return &Router{table: table, t: t}
}

// Route executes the 6-step algorithm: lookup, marked_for_removal
// check, timed operation_lock, timed command submission (folded into
// SendCommand's own ctx timeout since our WorkerConn is a direct
// call, not a literal queue-put), response read with thrash-drop
// handled inside rpc.Client, and an always-run unlock.
func (r *Router) Route(pipelineID, commandType string, payload []byte) ([]byte, error) {
	start := time.Now()
	resp, err := r.route(pipelineID, commandType, payload)
	if Registry != nil {
		Registry.CommandDurationSec.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		if err != nil {
			Registry.CommandErrors.WithLabelValues(commandType, string(apierrors.TypeOf(err))).Inc()
		}
	}
	return resp, err
}

func (r *Router) route(pipelineID, commandType string, payload []byte) ([]byte, error) {
	w, ok := r.table.Get(pipelineID)
	if !ok {
		return nil, apierrors.NewNotFound("pipeline not found", nil)
	}
	if h, ok := r.table.Health(pipelineID); ok && h.MarkedForRemoval {
		return nil, apierrors.NewOperationError("pipeline is terminating", nil)
	}

	lockCtx, cancel := timeoutCtx(r.t.QueueTimeout)
	defer cancel()
	if err := w.OperationLock.TryLock(lockCtx); err != nil {
		return nil, apierrors.NewOperationError("busy", err)
	}
	defer w.OperationLock.Unlock()

	return r.sendWithRetry(w, pipelineID, commandType, payload)
}

// sendWithRetry retries a command up to ResponseRetries times within
// an overall 2*QueueTimeout budget before giving up with a synthetic
// timeout error.
func (r *Router) sendWithRetry(w *ManagedWorker, pipelineID, commandType string, payload []byte) ([]byte, error) {
	overallDeadline := time.Now().Add(2 * r.t.QueueTimeout)
	retries := r.t.ResponseRetries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		remaining := time.Until(overallDeadline)
		if remaining <= 0 {
			break
		}
		timeout := r.t.QueueTimeout
		if remaining < timeout {
			timeout = remaining
		}

		requestID := uuid.NewString()
		resp, wireErr, err := w.Conn.SendCommand(requestID, commandType, pipelineID, payload, timeout)
		if err != nil {
			lastErr = err
			obslog.LogError(pipelineID, "command send failed, retrying", err, "attempt", attempt)
			continue
		}
		if wireErr != nil {
			return nil, apierrors.New(apierrors.ErrorType(wireErr.ErrorType), wireErr.PublicErrorMessage, nil)
		}
		return resp, nil
	}
	return nil, apierrors.NewOperationError("response read timed out", lastErr)
}

func timeoutCtx(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

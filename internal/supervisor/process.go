package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/rpc"
	"github.com/livepeer/pipectl/internal/subprocesslog"
)

// childProcess is the concrete WorkerConn: an exec'd `cmd/pipeline-worker`
// process talking rpc over a unix socket, with its stdout/stderr
// pumped through internal/subprocesslog and its lifetime bounded by
// context timeouts rather than a one-shot command run.
type childProcess struct {
	cmd    *exec.Cmd
	sock   string
	client *rpc.Client

	mu    sync.Mutex
	alive bool
}

// SpawnWorker execs the pipeline-worker binary, connects to its rpc
// socket (retrying briefly while the child starts up), and returns a
// ready WorkerConn.
func SpawnWorker(ctx context.Context, binary string, extraArgs []string) (WorkerConn, error) {
	sock := "/tmp/pipectl-worker-" + uuid.NewString() + ".sock"
	_ = os.Remove(sock)

	cmd := exec.CommandContext(ctx, binary, append([]string{"--socket", sock}, extraArgs...)...)
	if err := subprocesslog.LogOutputs(cmd); err != nil {
		return nil, fmt.Errorf("supervisor: attach worker output pumps: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start worker process: %w", err)
	}

	var conn net.Conn
	var err error
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err = net.Dial("unix", sock)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("supervisor: dial worker socket: %w", err)
	}

	return &childProcess{cmd: cmd, sock: sock, client: rpc.NewClient(conn), alive: true}, nil
}

func (c *childProcess) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return false
	}
	return c.cmd.ProcessState == nil
}

func (c *childProcess) PID() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *childProcess) Terminate() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Signal(os.Interrupt)
}

func (c *childProcess) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

func (c *childProcess) Join(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		c.mu.Lock()
		c.alive = false
		c.mu.Unlock()
		_ = c.client.Close()
		_ = os.Remove(c.sock)
		return err
	case <-time.After(timeout):
		return fmt.Errorf("supervisor: join timed out after %s", timeout)
	}
}

func (c *childProcess) SendCommand(requestID, commandType, pipelineID string, payload []byte, timeout time.Duration) ([]byte, *WireErr, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	env := rpc.Envelope{
		Type:       rpc.CommandType(commandType),
		PipelineID: pipelineID,
		RequestID:  requestID,
		Payload:    json.RawMessage(payload),
	}
	resp, err := c.client.Send(ctx, env)
	if err != nil {
		return nil, nil, err
	}
	if resp.Error != nil {
		obslog.Log(pipelineID, "worker command returned error", "type", commandType, "error_type", resp.Error.ErrorType)
		return nil, &WireErr{ErrorType: string(resp.Error.ErrorType), PublicErrorMessage: resp.Error.PublicErrorMessage}, nil
	}
	return resp.Response, nil, nil
}

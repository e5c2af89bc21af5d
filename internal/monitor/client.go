package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/livepeer/pipectl/internal/rpc"
)

// rpcSupervisorClient implements SupervisorClient over a persistent
// rpc.Client connection to the Supervisor's client-facing socket —
// the same wire protocol a CLI or HTTP facade client would use.
type rpcSupervisorClient struct {
	client *rpc.Client
}

func NewSupervisorClient(client *rpc.Client) SupervisorClient {
	return &rpcSupervisorClient{client: client}
}

func (c *rpcSupervisorClient) ListPipelines(ctx context.Context) ([]string, error) {
	resp, err := c.client.Send(ctx, rpc.Envelope{Type: rpc.CommandListPipelines, RequestID: uuid.NewString()})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("monitor: LIST failed: %s", resp.Error.PublicErrorMessage)
	}
	var out rpc.ListPipelinesResponse
	if err := json.Unmarshal(resp.Response, &out); err != nil {
		return nil, err
	}
	return out.PipelineIDs, nil
}

func (c *rpcSupervisorClient) Status(ctx context.Context, pipelineID string) (rpc.StatusPayload, error) {
	resp, err := c.client.Send(ctx, rpc.Envelope{Type: rpc.CommandStatus, PipelineID: pipelineID, RequestID: uuid.NewString()})
	if err != nil {
		return rpc.StatusPayload{}, err
	}
	if resp.Error != nil {
		return rpc.StatusPayload{}, fmt.Errorf("monitor: STATUS failed for %s: %s", pipelineID, resp.Error.PublicErrorMessage)
	}
	var out rpc.StatusPayload
	if err := json.Unmarshal(resp.Response, &out); err != nil {
		return rpc.StatusPayload{}, err
	}
	return out, nil
}

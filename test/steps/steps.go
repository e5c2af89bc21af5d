// Package steps holds the godog step definitions exercising the HTTP
// facade end to end: one StepContext struct carries the latest
// request/response across steps, mutated by step functions registered
// against *godog.ScenarioContext.
package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/cucumber/godog"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/httpfacade"
	"github.com/livepeer/pipectl/internal/rpc"
)

// StepContext carries state across one scenario's steps: the fake
// Supervisor it drives the facade with, and the latest HTTP exchange.
type StepContext struct {
	mu sync.Mutex

	dispatcher *fakeDispatcher

	latestStatus int
	latestBody   []byte
}

// fakeDispatcher stands in for the Supervisor: it tracks INIT'd
// pipeline IDs and answers STATUS/TERMINATE against that in-memory
// set, the same command surface httpfacade talks to in production.
type fakeDispatcher struct {
	mu        sync.Mutex
	pipelines map[string]bool
	nextID    int
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{pipelines: map[string]bool{}}
}

func (f *fakeDispatcher) Handle(_ context.Context, env rpc.Envelope) rpc.Response {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch env.Type {
	case rpc.CommandInit:
		f.nextID++
		id := fmt.Sprintf("p%d", f.nextID)
		f.pipelines[id] = true
		body, _ := json.Marshal(rpc.InitResponse{PipelineID: id})
		return rpc.Response{RequestID: env.RequestID, PipelineID: id, Response: body}
	case rpc.CommandStatus:
		if !f.pipelines[env.PipelineID] {
			we := apierrors.New(apierrors.NotFound, "no such pipeline", nil).ToWireError()
			return rpc.Response{RequestID: env.RequestID, Error: &we}
		}
		body, _ := json.Marshal(rpc.StatusPayload{InferenceThroughput: 30})
		return rpc.Response{RequestID: env.RequestID, PipelineID: env.PipelineID, Response: body}
	case rpc.CommandTerminate:
		if !f.pipelines[env.PipelineID] {
			we := apierrors.New(apierrors.NotFound, "no such pipeline", nil).ToWireError()
			return rpc.Response{RequestID: env.RequestID, Error: &we}
		}
		delete(f.pipelines, env.PipelineID)
		return rpc.Response{RequestID: env.RequestID, PipelineID: env.PipelineID, Response: json.RawMessage(`{}`)}
	default:
		we := apierrors.New(apierrors.OperationError, "unsupported in this fixture", nil).ToWireError()
		return rpc.Response{RequestID: env.RequestID, Error: &we}
	}
}

// RegisterSteps wires every step definition against ctx, resetting sc's
// fake Supervisor before each scenario.
func RegisterSteps(ctx *godog.ScenarioContext, sc *StepContext) {
	ctx.Before(func(c context.Context, s *godog.Scenario) (context.Context, error) {
		sc.dispatcher = newFakeDispatcher()
		return c, nil
	})

	ctx.Step(`^a pipectl server with no pipelines running$`, sc.noPipelinesRunning)
	ctx.Step(`^I request to init a pipeline with video reference "([^"]*)"$`, sc.initPipeline)
	ctx.Step(`^I request the status of pipeline "([^"]*)"$`, sc.statusPipeline)
	ctx.Step(`^I request to terminate pipeline "([^"]*)"$`, sc.terminatePipeline)
	ctx.Step(`^the response status should be (\d+)$`, sc.assertStatus)
	ctx.Step(`^the response should contain a pipeline_id$`, sc.assertHasPipelineID)
}

func (sc *StepContext) noPipelinesRunning() error {
	return nil
}

func (sc *StepContext) do(method, path string, body []byte) error {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	httpfacade.NewRouter(sc.dispatcher, "").ServeHTTP(rec, req)

	sc.mu.Lock()
	sc.latestStatus = rec.Code
	sc.latestBody = rec.Body.Bytes()
	sc.mu.Unlock()
	return nil
}

func (sc *StepContext) initPipeline(videoRef string) error {
	payload, _ := json.Marshal(map[string]interface{}{"video_reference": []string{videoRef}, "workflow": json.RawMessage(`{}`)})
	return sc.do(http.MethodPost, "/pipelines", payload)
}

func (sc *StepContext) statusPipeline(id string) error {
	return sc.do(http.MethodGet, "/pipelines/"+id, nil)
}

func (sc *StepContext) terminatePipeline(id string) error {
	return sc.do(http.MethodDelete, "/pipelines/"+id, nil)
}

func (sc *StepContext) assertStatus(want int) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.latestStatus != want {
		return fmt.Errorf("expected status %d, got %d (body %s)", want, sc.latestStatus, sc.latestBody)
	}
	return nil
}

func (sc *StepContext) assertHasPipelineID() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	var resp rpc.Response
	if err := json.Unmarshal(sc.latestBody, &resp); err != nil {
		return err
	}
	var out rpc.InitResponse
	if err := json.Unmarshal(resp.Response, &out); err != nil {
		return err
	}
	if out.PipelineID == "" {
		return fmt.Errorf("response carried no pipeline_id: %s", sc.latestBody)
	}
	return nil
}

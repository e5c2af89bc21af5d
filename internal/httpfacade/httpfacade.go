// Package httpfacade is the thin HTTP front door over the
// Supervisor's RPC command surface: routes are registered directly
// against a *httprouter.Router, one handler collection, middleware
// applied at registration time. No business logic lives here — every
// route just builds an rpc.Envelope, calls Dispatcher.Handle, and
// writes the response back as JSON.
package httpfacade

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/httpmiddleware"
	"github.com/livepeer/pipectl/internal/rpc"
)

// Dispatcher is the narrow view of the Supervisor this façade talks
// to — satisfied by *supervisor.Supervisor.
type Dispatcher interface {
	Handle(ctx context.Context, env rpc.Envelope) rpc.Response
}

// NewRouter builds the HTTP facade: one route per rpc.CommandType that
// makes sense as a REST verb, all translating straight through to
// dispatcher.Handle. authToken gates every route but /ok; an empty
// authToken disables the check.
func NewRouter(dispatcher Dispatcher, authToken string) *httprouter.Router {
	router := httprouter.New()
	wrap := func(h httprouter.Handle) httprouter.Handle {
		return httpmiddleware.Chain(h, httpmiddleware.AllowCORS(), httpmiddleware.LogAndRecover(), httpmiddleware.RequireBearerToken(authToken))
	}

	router.GET("/ok", httpmiddleware.Chain(ok, httpmiddleware.AllowCORS(), httpmiddleware.LogAndRecover()))
	router.GET("/pipelines", wrap(listPipelines(dispatcher)))
	router.POST("/pipelines", wrap(initPipeline(dispatcher)))
	router.GET("/pipelines/:id", wrap(statusPipeline(dispatcher)))
	router.DELETE("/pipelines/:id", wrap(terminatePipeline(dispatcher)))
	router.POST("/pipelines/:id/mute", wrap(commandNoBody(dispatcher, rpc.CommandMute)))
	router.POST("/pipelines/:id/resume", wrap(commandNoBody(dispatcher, rpc.CommandResume)))

	return router
}

func ok(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func listPipelines(d Dispatcher) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		resp := d.Handle(r.Context(), rpc.Envelope{Type: rpc.CommandListPipelines, RequestID: uuid.NewString()})
		respond(w, resp)
	}
}

func initPipeline(d Dispatcher) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		body, err := readBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		resp := d.Handle(r.Context(), rpc.Envelope{Type: rpc.CommandInit, RequestID: uuid.NewString(), Payload: body})
		respond(w, resp)
	}
}

func statusPipeline(d Dispatcher) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		resp := d.Handle(r.Context(), rpc.Envelope{Type: rpc.CommandStatus, PipelineID: ps.ByName("id"), RequestID: uuid.NewString()})
		respond(w, resp)
	}
}

func terminatePipeline(d Dispatcher) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		resp := d.Handle(r.Context(), rpc.Envelope{Type: rpc.CommandTerminate, PipelineID: ps.ByName("id"), RequestID: uuid.NewString()})
		respond(w, resp)
	}
}

func commandNoBody(d Dispatcher, cmd rpc.CommandType) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		resp := d.Handle(r.Context(), rpc.Envelope{Type: cmd, PipelineID: ps.ByName("id"), RequestID: uuid.NewString()})
		respond(w, resp)
	}
}

func readBody(r *http.Request) (json.RawMessage, error) {
	defer r.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func respond(w http.ResponseWriter, resp rpc.Response) {
	if resp.Error != nil {
		writeJSON(w, apierrors.StatusFor(resp.Error.ErrorType), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

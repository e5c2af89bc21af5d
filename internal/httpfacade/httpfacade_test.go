package httpfacade

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/rpc"
)

type fakeDispatcher struct {
	lastEnvelope rpc.Envelope
	resp         rpc.Response
}

func (f *fakeDispatcher) Handle(_ context.Context, env rpc.Envelope) rpc.Response {
	f.lastEnvelope = env
	f.resp.RequestID = env.RequestID
	f.resp.PipelineID = env.PipelineID
	return f.resp
}

func TestOkReturnsHealthy(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, "")
	req := httptest.NewRequest("GET", "/ok", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestInitPipelineForwardsBodyAsPayload(t *testing.T) {
	d := &fakeDispatcher{resp: rpc.Response{Response: json.RawMessage(`{"pipeline_id":"p1"}`)}}
	router := NewRouter(d, "")

	req := httptest.NewRequest("POST", "/pipelines", strings.NewReader(`{"video_reference":["a"]}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Equal(t, rpc.CommandInit, d.lastEnvelope.Type)
	require.JSONEq(t, `{"video_reference":["a"]}`, string(d.lastEnvelope.Payload))
}

func TestStatusPipelineExtractsIDFromPath(t *testing.T) {
	d := &fakeDispatcher{}
	router := NewRouter(d, "")

	req := httptest.NewRequest("GET", "/pipelines/abc123", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, rpc.CommandStatus, d.lastEnvelope.Type)
	require.Equal(t, "abc123", d.lastEnvelope.PipelineID)
}

func TestTerminatePipelineUsesDeleteVerb(t *testing.T) {
	d := &fakeDispatcher{}
	router := NewRouter(d, "")

	req := httptest.NewRequest("DELETE", "/pipelines/xyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, rpc.CommandTerminate, d.lastEnvelope.Type)
	require.Equal(t, "xyz", d.lastEnvelope.PipelineID)
}

func TestErrorResponseMapsErrorTypeToHTTPStatus(t *testing.T) {
	we := apierrors.WireError{ErrorType: apierrors.NotFound, PublicErrorMessage: "no such pipeline"}
	d := &fakeDispatcher{resp: rpc.Response{Error: &we}}
	router := NewRouter(d, "")

	req := httptest.NewRequest("GET", "/pipelines/missing", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, 404, rec.Code)
}

func TestInitPipelineRejectsMalformedJSONBody(t *testing.T) {
	d := &fakeDispatcher{}
	router := NewRouter(d, "")

	req := httptest.NewRequest("POST", "/pipelines", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestAuthTokenRejectsMissingOrWrongBearer(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, "secret")

	req := httptest.NewRequest("GET", "/pipelines", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, 401, rec.Code)

	req2 := httptest.NewRequest("GET", "/pipelines", nil)
	req2.Header.Set("Authorization", "Bearer wrong")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	require.Equal(t, 401, rec2.Code)
}

func TestAuthTokenAllowsCorrectBearer(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, "secret")

	req := httptest.NewRequest("GET", "/pipelines", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
}

func TestOkRouteNeverRequiresAuthToken(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, "secret")

	req := httptest.NewRequest("GET", "/ok", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
}

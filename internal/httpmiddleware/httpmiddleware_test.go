package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func okHandle(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func panicHandle(_ http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	panic("boom")
}

func TestRequireBearerTokenDisabledWhenEmpty(t *testing.T) {
	h := RequireBearerToken("")(okHandle)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireBearerTokenRejectsMismatch(t *testing.T) {
	h := RequireBearerToken("secret")(okHandle)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerTokenAcceptsMatch(t *testing.T) {
	h := RequireBearerToken("secret")(okHandle)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAllowCORSAnswersPreflightDirectly(t *testing.T) {
	h := AllowCORS()(okHandle)
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAllowCORSReflectsOrigin(t *testing.T) {
	h := AllowCORS()(okHandle)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	require.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogAndRecoverTurnsPanicIntoInternalError(t *testing.T) {
	h := LogAndRecover()(panicHandle)
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h(rec, httptest.NewRequest("GET", "/", nil), nil)
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChainAppliesOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) func(httprouter.Handle) httprouter.Handle {
		return func(next httprouter.Handle) httprouter.Handle {
			return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
				order = append(order, name)
				next(w, r, ps)
			}
		}
	}
	h := Chain(okHandle, mark("a"), mark("b"))
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/", nil), nil)
	require.Equal(t, []string{"a", "b"}, order)
}

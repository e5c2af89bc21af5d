package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

func TestHTTPStoreWriteBatchPostsJSON(t *testing.T) {
	var received []pipelinemodel.MetricPoint
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL)
	err := store.WriteBatch(context.Background(), samplePoints())

	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, "frame_latency", received[0].Measurement)
}

func TestHTTPStoreWriteBatchErrorsOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL)
	err := store.WriteBatch(context.Background(), samplePoints())

	require.Error(t, err)
}

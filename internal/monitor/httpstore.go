package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// httpStore is the concrete Store backend: it POSTs a batch of
// MetricPoints as JSON to a configured time-series ingest endpoint
// over a retryablehttp-wrapped http.Client. The connection-level
// retries this client performs are a different concern from
// breakerStore's application-level backoff.Retry: one absorbs
// transient TCP/5xx hiccups within a single call, the other decides
// whether to keep calling at all.
type httpStore struct {
	url    string
	client *http.Client
}

// NewHTTPStore builds a Store that posts batches to url.
func NewHTTPStore(url string) Store {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 1 * time.Second
	rc.Logger = nil
	return &httpStore{url: url, client: rc.StandardClient()}
}

func (s *httpStore) WriteBatch(ctx context.Context, points []pipelinemodel.MetricPoint) error {
	body, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("monitor: marshal metric batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("monitor: build metric store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("monitor: metric store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("monitor: metric store returned status %d", resp.StatusCode)
	}
	return nil
}

// Package monitor implements the orchestrator-side background
// coordinator : the poll loop, time-series store
// writer, disk-quota enforcement, and on-disk spool + replay for store
// outages.
package monitor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// Store is the time-series backend the Monitor writes batches to —
// the same narrow interface internal/sink.MetricSink uses, so both
// share one store client implementation.
type Store interface {
	WriteBatch(ctx context.Context, points []pipelinemodel.MetricPoint) error
}

// breakerStore wraps a Store with a circuit breaker (so a store outage
// fails fast instead of piling up retries) and exponential backoff on
// the underlying write, grounded on jordigilh-kubernaut's
// gobreaker-wrapped external-API client pattern.
type breakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerStore(inner Store) Store {
	settings := gobreaker.Settings{
		Name:        "metric-store",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &breakerStore{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerStore) WriteBatch(ctx context.Context, points []pipelinemodel.MetricPoint) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		return nil, backoff.Retry(func() error {
			return b.inner.WriteBatch(ctx, points)
		}, bo)
	})
	return err
}

package monitor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/hostinfo"
	"github.com/livepeer/pipectl/internal/metrics"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
	"github.com/livepeer/pipectl/internal/rpc"
)

// Registry is the process-wide metrics sink, set once by cmd/pipectl's
// main before Run is called. Nil is fine (tests) — every site checks it.
var Registry *metrics.Metrics

// SupervisorClient is the narrow view of the Supervisor's client
// socket the Monitor polls: LIST + STATUS, the same command surface a
// CLI client uses.
type SupervisorClient interface {
	ListPipelines(ctx context.Context) ([]string, error)
	Status(ctx context.Context, pipelineID string) (rpc.StatusPayload, error)
}

// Monitor runs the orchestrator-side polling and metrics-flush loop.
type Monitor struct {
	client SupervisorClient
	store  Store
	t      config.Tunables

	recordingsRoot string

	mu         sync.Mutex
	buffer     []pipelinemodel.MetricPoint
	lastFlush  time.Time

	consecutiveFailures int
	workers             chan struct{}
}

func New(client SupervisorClient, store Store, t config.Tunables, recordingsRoot string) *Monitor {
	maxWorkers := t.MaxBackgroundWorkers
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	return &Monitor{
		client:         client,
		store:          store,
		t:              t,
		recordingsRoot: recordingsRoot,
		lastFlush:      time.Now(),
		workers:        make(chan struct{}, maxWorkers),
	}
}

// Run is the cooperative main loop; it returns once ctx is done,
// after joining any outstanding background flush/cleanup work.
func (m *Monitor) Run(ctx context.Context) {
	ReplayBackups(ctx, m.recordingsRoot, m.store)

	sizeCheck := m.t.SizeCheckInterval
	if sizeCheck <= 0 {
		sizeCheck = time.Minute
	}
	cleanup := m.t.CleanupInterval
	if cleanup <= 0 {
		cleanup = time.Hour
	}
	lastSizeCheck := time.Now().Add(-sizeCheck)
	lastCleanup := time.Now().Add(-cleanup)

	var wg sync.WaitGroup
	defer func() {
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(m.t.ProcessJoinTimeout):
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		loopStart := time.Now()

		err := m.poll(ctx, &wg)
		if Registry != nil {
			Registry.MonitorPollDurationSec.Observe(time.Since(loopStart).Seconds())
		}
		if err != nil {
			m.consecutiveFailures++
			backoffFor := m.backoffDuration()
			obslog.LogError("", "monitor poll loop failed", err, "consecutive_failures", m.consecutiveFailures)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffFor):
			}
			continue
		}
		m.consecutiveFailures = 0

		if time.Since(lastSizeCheck) >= sizeCheck {
			lastSizeCheck = time.Now()
			EnforceDiskQuota(m.recordingsRoot, m.t.MaxSizeGB)
		}
		if time.Since(lastCleanup) >= cleanup {
			lastCleanup = time.Now()
			EnforceMaxDays(m.recordingsRoot, m.t.ResultsMaxDays)
		}

		interval := m.t.MonitorPollInterval
		if interval <= 0 {
			interval = 100 * time.Millisecond
		}
		elapsed := time.Since(loopStart)
		sleep := interval - elapsed
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// backoffDuration exponentially backs off on consecutive full-loop
// failures, capped at 5 minutes.
func (m *Monitor) backoffDuration() time.Duration {
	d := time.Second << uint(m.consecutiveFailures-1)
	max := 5 * time.Minute
	if d > max || d <= 0 {
		d = max
	}
	return d
}

func (m *Monitor) poll(ctx context.Context, wg *sync.WaitGroup) error {
	ids, err := m.client.ListPipelines(ctx)
	if err != nil {
		return err
	}

	weight := m.t.MonitorSemaphoreWeight
	if weight <= 0 {
		weight = 10
	}
	sem := semaphore.NewWeighted(weight)

	var fanWg sync.WaitGroup
	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		fanWg.Add(1)
		go func(pipelineID string) {
			defer fanWg.Done()
			defer sem.Release(1)
			m.pollOne(ctx, pipelineID)
		}(id)
	}
	fanWg.Wait()

	m.appendHostSnapshot()
	m.maybeFlush(ctx, wg)
	return nil
}

// appendHostSnapshot records one host-wide resource sample per poll
// cycle alongside the per-pipeline points; a sampling failure (e.g. an
// unreadable disk path) is logged and otherwise ignored.
func (m *Monitor) appendHostSnapshot() {
	snap, err := hostinfo.Sample(m.recordingsRoot)
	if err != nil {
		obslog.LogNoID("monitor: host snapshot failed", "err", err.Error())
		return
	}
	m.mu.Lock()
	m.buffer = append(m.buffer, snap.MetricPoint(time.Now()))
	m.mu.Unlock()
}

func (m *Monitor) pollOne(ctx context.Context, pipelineID string) {
	status, err := m.client.Status(ctx, pipelineID)
	if err != nil {
		obslog.LogError(pipelineID, "monitor status poll failed", err)
		return
	}
	now := time.Now()
	points := toMetricPoints(pipelineID, status, now)

	m.mu.Lock()
	m.buffer = append(m.buffer, points...)
	bufSize := len(m.buffer)
	m.mu.Unlock()

	if Registry != nil {
		Registry.MonitorBufferSize.Set(float64(bufSize))
	}
}

func toMetricPoints(pipelineID string, status rpc.StatusPayload, now time.Time) []pipelinemodel.MetricPoint {
	points := []pipelinemodel.MetricPoint{{
		Measurement: "pipeline_status",
		Tags:        pipelinemodel.NewMetricTags(pipelineID, "", pipelinemodel.MetricLevelPipeline),
		Fields: map[string]interface{}{
			"inference_throughput": status.InferenceThroughput,
			"source_count":         len(status.SourcesMetadata),
		},
		Time: now,
	}}
	for _, src := range status.SourcesMetadata {
		points = append(points, pipelinemodel.MetricPoint{
			Measurement: "pipeline_source_status",
			Tags:        pipelinemodel.NewMetricTags(pipelineID, src.SourceID, pipelinemodel.MetricLevelSource),
			Fields:      map[string]interface{}{"state": src.State},
			Time:        now,
		})
	}
	for _, lat := range status.LatencyReports {
		points = append(points, pipelinemodel.MetricPoint{
			Measurement: "pipeline_latency",
			Tags:        pipelinemodel.NewMetricTags(pipelineID, lat.SourceID, pipelinemodel.MetricLevelSource),
			Fields:      map[string]interface{}{"latency_ms": lat.LatencyMs},
			Time:        now,
		})
	}
	return points
}

// maybeFlush drains the buffer and writes it in a background worker
// when it's grown past the batch size or enough time has passed,
// bounded by m.workers so at most max_background_workers flushes run
// concurrently.
func (m *Monitor) maybeFlush(ctx context.Context, wg *sync.WaitGroup) {
	m.mu.Lock()
	batchSize := m.t.MonitorBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	due := len(m.buffer) >= batchSize || time.Since(m.lastFlush) >= m.t.MonitorFlushInterval
	if !due || len(m.buffer) == 0 {
		m.mu.Unlock()
		return
	}
	points := m.buffer
	m.buffer = nil
	m.lastFlush = time.Now()
	m.mu.Unlock()

	select {
	case m.workers <- struct{}{}:
	default:
		// All background workers busy: flush inline rather than
		// growing an unbounded goroutine backlog.
		m.flush(ctx, points)
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { <-m.workers }()
		m.flush(ctx, points)
	}()
}

func (m *Monitor) flush(ctx context.Context, points []pipelinemodel.MetricPoint) {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.store.WriteBatch(writeCtx, points); err != nil {
		obslog.LogError("", "monitor store write failed, spooling", err)
		if Registry != nil {
			Registry.MonitorStoreErrors.Inc()
		}
		spool := newSpoolWriter(m.recordingsRoot)
		if serr := spool.Write(points); serr != nil {
			obslog.LogError("", "monitor spool write failed", serr)
		} else if Registry != nil {
			Registry.MonitorSpooledBatches.Inc()
		}
	}
}

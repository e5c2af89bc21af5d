// Command pipeline-worker is the per-pipeline worker process exec'd by
// the Supervisor (internal/supervisor.SpawnWorker). It owns exactly one
// pipeline: decode/infer driver, sink chain, optional WebRTC bridge,
// and the command dispatcher, all over a unix-socket RPC listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/framesource"
	"github.com/livepeer/pipectl/internal/metrics"
	"github.com/livepeer/pipectl/internal/monitor"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/rpc"
	"github.com/livepeer/pipectl/internal/sink"
	"github.com/livepeer/pipectl/internal/webrtcbridge"
	"github.com/livepeer/pipectl/internal/worker"
)

func main() {
	fs := flag.NewFlagSet("pipeline-worker", flag.ExitOnError)
	socket := fs.String("socket", "", "unix socket path to listen on (required)")
	storeURL := fs.String("metric-store-url", "", "time-series ingest URL for this pipeline's MetricSink (empty disables)")
	spoolDir := fs.String("results-spool-dir", "", "directory for CONSUME_RESULT audit spool files")
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on (empty disables)")

	desc, err := config.Load(fs, os.Args[1:], false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline-worker: config:", err)
		os.Exit(1)
	}
	if *socket == "" {
		fmt.Fprintln(os.Stderr, "pipeline-worker: --socket is required")
		os.Exit(1)
	}
	if *spoolDir == "" {
		*spoolDir = desc.CacheRoot + "/results"
	}

	if *metricsAddr != "" {
		reg := metrics.NewMetrics()
		sink.Registry = reg
		webrtcbridge.Registry = reg
		go serveMetrics(*metricsAddr)
	}

	var store sink.TimeSeriesStore
	if *storeURL != "" {
		store = monitor.NewBreakerStore(monitor.NewHTTPStore(*storeURL))
	}

	newDriver := func(init rpc.InitPayload) (worker.FrameProducer, error) {
		if len(init.VideoReference) == 0 {
			return nil, fmt.Errorf("pipeline-worker: empty video_reference")
		}
		ids := make([]string, len(init.VideoReference))
		for i, ref := range init.VideoReference {
			ids[i] = sourceIDFor(ref, i)
		}
		return framesource.New(framesource.Config{SourceIDs: ids}), nil
	}

	dispatcher := worker.NewDispatcher(desc.Tunables, newDriver, store, *spoolDir)

	_ = os.Remove(*socket)
	l, err := net.Listen("unix", *socket)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline-worker: listen:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obslog.LogNoID("pipeline-worker: listening", "socket", *socket)
	if err := rpc.Serve(ctx, l, dispatcher.Handle); err != nil {
		fmt.Fprintln(os.Stderr, "pipeline-worker: serve:", err)
		os.Exit(1)
	}
}

// sourceIDFor derives a stable source_id from a video_reference entry,
// falling back to a positional id when the reference has no obvious name.
func sourceIDFor(ref string, index int) string {
	trimmed := strings.TrimRight(ref, "/")
	if slash := strings.LastIndex(trimmed, "/"); slash >= 0 && slash+1 < len(trimmed) {
		return trimmed[slash+1:]
	}
	if trimmed != "" {
		return trimmed
	}
	return fmt.Sprintf("source_%d", index)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		obslog.LogNoID("pipeline-worker: metrics server exited", "err", err.Error())
	}
}

// Command pipectl is the orchestrator's CLI and long-running server
// entry point: `config validate`, `init`, `plugins list`, and `serve`.
// Every subcommand prints JSON to stdout and exits 0 on success, 1 on
// failure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livepeer/pipectl/internal/config"
	"github.com/livepeer/pipectl/internal/httpfacade"
	"github.com/livepeer/pipectl/internal/metrics"
	"github.com/livepeer/pipectl/internal/monitor"
	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
	"github.com/livepeer/pipectl/internal/registry"
	"github.com/livepeer/pipectl/internal/rpc"
	"github.com/livepeer/pipectl/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		fail(fmt.Errorf("usage: pipectl <config|init|plugins|serve> ..."))
	}

	var err error
	switch os.Args[1] {
	case "config":
		err = runConfigValidate(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "plugins":
		err = runPluginsList(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	default:
		err = fmt.Errorf("unknown subcommand %q", os.Args[1])
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	_ = json.NewEncoder(os.Stderr).Encode(map[string]string{"error": err.Error()})
	os.Exit(1)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadDescriptor(args []string, name string) (config.Descriptor, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return config.Load(fs, args, false)
}

// runConfigValidate parses and validates the merged descriptor,
// printing it back out as JSON on success.
func runConfigValidate(args []string) error {
	if len(args) == 0 || args[0] != "validate" {
		return fmt.Errorf("usage: pipectl config validate [-c FILE] [--set K=V]... [--no-env]")
	}
	desc, err := loadDescriptor(args[1:], "config-validate")
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"valid": true, "descriptor": desc})
}

// runInit sends an INIT command to a running Supervisor's client
// socket, built from the --video-reference and --workflow flags.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	video := fs.String("video-reference", "", "comma-separated video_reference entries")
	workflow := fs.String("workflow", "{}", "workflow JSON blob")
	desc, err := config.Load(fs, args, false)
	if err != nil {
		return err
	}
	if *video == "" {
		return fmt.Errorf("--video-reference is required")
	}

	client, closeFn, err := dialSupervisor(desc)
	if err != nil {
		return err
	}
	defer closeFn()

	payload, err := json.Marshal(rpc.InitPayload{
		VideoReference:  strings.Split(*video, ","),
		Workflow:        json.RawMessage(*workflow),
		BufferSinkQueue: 64,
	})
	if err != nil {
		return err
	}

	resp, err := client.Send(context.Background(), rpc.Envelope{
		Type:      rpc.CommandInit,
		RequestID: uuid.NewString(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.ErrorType, resp.Error.PublicErrorMessage)
	}
	var out rpc.InitResponse
	if err := json.Unmarshal(resp.Response, &out); err != nil {
		return err
	}
	return printJSON(out)
}

// runPluginsList prints the compiled-in adapter registry, optionally
// filtered by --group.
func runPluginsList(args []string) error {
	if len(args) == 0 || args[0] != "list" {
		return fmt.Errorf("usage: pipectl plugins list [--group backends|patches|workflows]")
	}
	fs := flag.NewFlagSet("plugins-list", flag.ContinueOnError)
	group := fs.String("group", "", "filter by adapter group")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	return printJSON(registry.List(registry.Group(*group)))
}

// runServe starts the Supervisor and Monitor in one process: the
// Supervisor's client socket, its health/warm-pool loops, and the
// Monitor's poll loop, all sharing one Prometheus registry. The Monitor
// talks to the Supervisor in-process (inProcessClient) rather than
// dialing its own socket, since both live in the same binary.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	workerBinary := fs.String("worker-binary", "pipeline-worker", "path to the pipeline-worker binary")
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on (empty disables)")
	httpAddr := fs.String("http-addr", "", "address for the HTTP+RPC front door (empty disables)")
	apiToken := fs.String("api-token", "", "bearer token required on the HTTP+RPC front door (empty disables auth)")
	storeURL := fs.String("metric-store-url", "", "time-series ingest URL for the Monitor (empty disables, spooling still occurs)")
	desc, err := config.Load(fs, args, false)
	if err != nil {
		return err
	}

	reg := metrics.NewMetrics()
	supervisor.Registry = reg
	monitor.Registry = reg
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	spawner := func(ctx context.Context) (*supervisor.ManagedWorker, error) {
		conn, err := supervisor.SpawnWorker(ctx, *workerBinary, []string{"--metric-store-url", *storeURL})
		if err != nil {
			return nil, err
		}
		return supervisor.NewManagedWorker("", conn), nil
	}

	sup := supervisor.New(desc.Tunables, spawner, nil)

	addr := strings.TrimPrefix(desc.ListenAddr, "unix://")
	_ = os.Remove(addr)
	l, err := net.Listen("unix", addr)
	if err != nil {
		return fmt.Errorf("serve: listen on %s: %w", desc.ListenAddr, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store monitor.Store
	if *storeURL != "" {
		store = monitor.NewBreakerStore(monitor.NewHTTPStore(*storeURL))
	} else {
		store = noopStore{}
	}
	mon := monitor.New(inProcessClient{sup}, store, desc.Tunables, desc.OutputDir)
	go mon.Run(ctx)

	if *httpAddr != "" {
		httpServer := &http.Server{Addr: *httpAddr, Handler: httpfacade.NewRouter(sup, *apiToken)}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				obslog.LogNoID("pipectl: http facade exited", "err", err.Error())
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	obslog.LogNoID("pipectl: serving", "addr", desc.ListenAddr)
	return sup.Run(ctx, l)
}

// inProcessClient implements monitor.SupervisorClient by calling the
// Supervisor's own Handle method directly, skipping the socket round
// trip since both run in this process.
type inProcessClient struct {
	sup *supervisor.Supervisor
}

func (c inProcessClient) ListPipelines(ctx context.Context) ([]string, error) {
	resp := c.sup.Handle(ctx, rpc.Envelope{Type: rpc.CommandListPipelines, RequestID: uuid.NewString()})
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %s", resp.Error.ErrorType, resp.Error.PublicErrorMessage)
	}
	var out rpc.ListPipelinesResponse
	if err := json.Unmarshal(resp.Response, &out); err != nil {
		return nil, err
	}
	return out.PipelineIDs, nil
}

func (c inProcessClient) Status(ctx context.Context, pipelineID string) (rpc.StatusPayload, error) {
	resp := c.sup.Handle(ctx, rpc.Envelope{Type: rpc.CommandStatus, PipelineID: pipelineID, RequestID: uuid.NewString()})
	if resp.Error != nil {
		return rpc.StatusPayload{}, fmt.Errorf("%s: %s", resp.Error.ErrorType, resp.Error.PublicErrorMessage)
	}
	var out rpc.StatusPayload
	if err := json.Unmarshal(resp.Response, &out); err != nil {
		return rpc.StatusPayload{}, err
	}
	return out, nil
}

// noopStore stands in when no --metric-store-url is configured: every
// write returns an error, so the Monitor spools each batch to disk.
type noopStore struct{}

func (noopStore) WriteBatch(_ context.Context, _ []pipelinemodel.MetricPoint) error {
	return fmt.Errorf("pipectl: no metric store configured")
}

func dialSupervisor(desc config.Descriptor) (*rpc.Client, func(), error) {
	addr := strings.TrimPrefix(desc.ListenAddr, "unix://")
	conn, err := net.Dial("unix", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial supervisor at %s: %w", desc.ListenAddr, err)
	}
	client := rpc.NewClient(conn)
	return client, func() { _ = client.Close() }, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		obslog.LogNoID("pipectl: metrics server exited", "err", err.Error())
	}
}

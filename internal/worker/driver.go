// Package worker implements the per-pipeline worker process: pipeline
// driver, sink-chain composition, command dispatcher, and the
// consumption-timeout self-termination guard. Run as
// cmd/pipeline-worker's main, exec'd as a child process by the
// Supervisor.
package worker

import (
	"context"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// FrameProducer is the narrow interface the dispatcher drives:
// scheduling inside the worker is single-threaded cooperative — one
// frame at a time flows through the sink chain — while the producer
// may internally run its own worker-pool for model execution, opaque
// to the rest of this package. Concrete producers come from the
// newDriver function given to NewDispatcher; cmd/pipeline-worker builds
// an internal/framesource producer from the INIT payload's
// video_reference entries.
type FrameProducer interface {
	// Next blocks until the next FrameEnvelope is ready, or ctx is
	// done, or all sources have drained (io.EOF-equivalent: returns
	// ok=false, err=nil).
	Next(ctx context.Context) (pipelinemodel.FrameEnvelope, bool, error)

	// Sources reports the current per-source state, for STATUS and
	// the DRAINING transition.
	Sources() []pipelinemodel.SourceStatus

	// Mute/Resume pause/unpause frame production without tearing the
	// producer down, for the MUTE/RESUME commands.
	Mute()
	Resume()

	Close() error
}

// Package framesource provides the one concrete worker.FrameProducer
// shipped in this repo: a synthetic pattern generator standing in for
// a real decode/infer/visualize driver, which lives outside the
// FrameProducer interface this package targets. It exists only so
// cmd/pipeline-worker has something real to drive through the sink
// chain and WebRTC bridge end to end.
package framesource

import (
	"context"
	"sync"
	"time"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// Config configures one synthetic source per entry in video_reference.
type Config struct {
	SourceIDs  []string
	Width      int
	Height     int
	FrameRate  time.Duration // time between frames
	FrameLimit int           // 0 = unbounded
}

// Synthetic round-robins a solid, frame-counter-tinted color frame
// across its configured sources, standing in for a real decode
// pipeline.
type Synthetic struct {
	cfg Config

	mu     sync.Mutex
	muted  bool
	closed bool

	next   int
	counts map[string]int64
}

func New(cfg Config) *Synthetic {
	if cfg.Width <= 0 {
		cfg.Width = 320
	}
	if cfg.Height <= 0 {
		cfg.Height = 240
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 33 * time.Millisecond
	}
	counts := make(map[string]int64, len(cfg.SourceIDs))
	for _, id := range cfg.SourceIDs {
		counts[id] = 0
	}
	return &Synthetic{cfg: cfg, counts: counts}
}

func (s *Synthetic) Next(ctx context.Context) (pipelinemodel.FrameEnvelope, bool, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return pipelinemodel.FrameEnvelope{}, false, nil
		}
		if s.muted {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return pipelinemodel.FrameEnvelope{}, false, ctx.Err()
			case <-time.After(s.cfg.FrameRate):
				continue
			}
		}
		if len(s.cfg.SourceIDs) == 0 {
			s.mu.Unlock()
			return pipelinemodel.FrameEnvelope{}, false, nil
		}

		sourceID := s.cfg.SourceIDs[s.next%len(s.cfg.SourceIDs)]
		s.next++
		frameID := s.counts[sourceID]
		s.counts[sourceID]++
		done := s.cfg.FrameLimit > 0 && frameID >= int64(s.cfg.FrameLimit)
		s.mu.Unlock()

		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return pipelinemodel.FrameEnvelope{}, false, ctx.Err()
		case <-time.After(s.cfg.FrameRate):
		}

		img := solidFrame(s.cfg.Width, s.cfg.Height, byte(frameID%255))
		return pipelinemodel.FrameEnvelope{
			SourceID:       sourceID,
			FrameID:        frameID,
			FrameTimestamp: time.Now(),
			Image:          img,
			Prediction: pipelinemodel.Prediction{
				"frame": pipelinemodel.PredictionValue{Image: img},
			},
		}, true, nil
	}
}

func solidFrame(width, height int, tint byte) *pipelinemodel.WorkflowImage {
	pix := make([]byte, width*height*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i] = tint
		pix[i+1] = 128
		pix[i+2] = 255 - tint
	}
	return &pipelinemodel.WorkflowImage{Width: width, Height: height, Pix: pix}
}

func (s *Synthetic) Sources() []pipelinemodel.SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipelinemodel.SourceStatus, 0, len(s.cfg.SourceIDs))
	for _, id := range s.cfg.SourceIDs {
		state := pipelinemodel.SourceRunning
		if s.cfg.FrameLimit > 0 && s.counts[id] >= int64(s.cfg.FrameLimit) {
			state = pipelinemodel.SourceEnded
		}
		out = append(out, pipelinemodel.SourceStatus{SourceID: id, State: state})
	}
	return out
}

func (s *Synthetic) Mute() {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
}

func (s *Synthetic) Resume() {
	s.mu.Lock()
	s.muted = false
	s.mu.Unlock()
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// VideoSinkConfig configures one VideoSink instance, mirroring
// knobs.
type VideoSinkConfig struct {
	OutputDir        string
	SegmentDuration  time.Duration
	MaxTotalSize     int64
	MaxDiskUsage     float64
	TargetWidth      int
	TargetHeight     int
	VideoFieldName   string
	PreferredCodec   string
	QueueSize        int
}

// VideoSink is the segmented recorder : a single
// writer goroutine owns the current segment; OnPrediction only
// enqueues, so the pipeline thread is never blocked by encode or
// filesystem I/O.
type VideoSink struct {
	cfg        VideoSinkConfig
	pipelineID string

	queue  chan pipelinemodel.Batch
	done   chan struct{}
	closed chan struct{}

	counters counterSet

	segments []pipelinemodel.SegmentFile

	writer          frameWriter
	segmentStart    time.Time
	segmentPath     string
	segmentFrames   int
	firstSegment    bool
	measuredFPSWindowStart time.Time
	measuredFPSWindowCount int
	lastMeasuredFPS float64

	framesSinceEvictionCheck int
}

// NewVideoSink constructs and preloads a VideoSink: it scans
// cfg.OutputDir for existing segments so they participate in
// eviction, "Preload".
func NewVideoSink(ctx context.Context, pipelineID string, cfg VideoSinkConfig) (*VideoSink, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("sink: create output dir: %w", err)
	}
	v := &VideoSink{
		cfg:          cfg,
		pipelineID:   pipelineID,
		queue:        make(chan pipelinemodel.Batch, cfg.QueueSize),
		done:         make(chan struct{}),
		closed:       make(chan struct{}),
		firstSegment: true,
	}
	if err := v.preload(); err != nil {
		return nil, err
	}
	go v.run(ctx)
	startCounterLogger(ctx, "video", pipelineID, v.Counters)
	return v, nil
}

func (v *VideoSink) preload() error {
	entries, err := os.ReadDir(v.cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("sink: preload read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		info, err := e.Info()
		if err != nil {
			continue
		}
		created, parseErr := pipelinemodel.ParseSegmentTime(name)
		if parseErr != nil {
			created = info.ModTime()
		}
		v.segments = append(v.segments, pipelinemodel.SegmentFile{
			Path:        filepath.Join(v.cfg.OutputDir, name),
			SizeBytes:   info.Size(),
			CreatedTime: created,
		})
	}
	pipelinemodel.SortSegmentsByCreated(v.segments)
	return nil
}

func (v *VideoSink) OnPrediction(item pipelinemodel.Batch) {
	atomic.AddInt64(&v.counters.enqueued, 1)
	select {
	case v.queue <- item:
	default:
		select {
		case <-v.queue:
			atomic.AddInt64(&v.counters.dropped, 1)
		default:
		}
		select {
		case v.queue <- item:
		default:
			atomic.AddInt64(&v.counters.dropped, 1)
		}
	}
}

func (v *VideoSink) run(ctx context.Context) {
	defer close(v.closed)
	for item := range v.queue {
		if err := v.handle(item); err != nil {
			atomic.AddInt64(&v.counters.errors, 1)
			obslog.LogError(v.pipelineID, "video sink frame handling failed", err)
			continue
		}
		atomic.AddInt64(&v.counters.processed, 1)
	}
	v.closeSegment()
}

func (v *VideoSink) handle(item pipelinemodel.Batch) error {
	now := time.Now()
	img := v.extractFrame(item)
	if img == nil {
		return nil
	}

	if v.writer == nil || now.Sub(v.segmentStart) >= v.cfg.SegmentDuration {
		if err := v.rollSegment(now, img); err != nil {
			return err
		}
	}

	fps := v.measureFPS(now)
	statsOverlay(img, now, fps)
	if err := v.writer.WriteFrame(img); err != nil {
		return fmt.Errorf("sink: write frame: %w", err)
	}
	v.segmentFrames++
	v.framesSinceEvictionCheck++
	if v.framesSinceEvictionCheck >= 100 {
		v.framesSinceEvictionCheck = 0
		v.enforceEviction()
	}
	return nil
}

// extractFrame picks the configured video_field_name output if
// present, else the first WorkflowImage in the prediction, else the
// raw input image — "Frame extraction".
func (v *VideoSink) extractFrame(item pipelinemodel.Batch) *pipelinemodel.WorkflowImage {
	for _, f := range item.Frames {
		if v.cfg.VideoFieldName != "" {
			if pv, ok := f.Prediction[v.cfg.VideoFieldName]; ok && pv.Image != nil {
				return pv.Image
			}
		}
		for _, pv := range f.Prediction {
			if pv.Image != nil {
				return pv.Image
			}
		}
		if f.Image != nil {
			return f.Image
		}
	}
	return nil
}

// measureFPS counts frames in 1s windows and returns the rate of the
// last completed window, clamped to [1, 60], or 10 before the first
// window completes. The value feeds the stats overlay and the FPS of
// later segments (see rollSegment).
func (v *VideoSink) measureFPS(now time.Time) float64 {
	if v.measuredFPSWindowStart.IsZero() {
		v.measuredFPSWindowStart = now
	}
	v.measuredFPSWindowCount++
	if elapsed := now.Sub(v.measuredFPSWindowStart); elapsed >= time.Second {
		fps := float64(v.measuredFPSWindowCount) / elapsed.Seconds()
		if fps < 1 {
			fps = 1
		}
		if fps > 60 {
			fps = 60
		}
		v.lastMeasuredFPS = fps
		v.measuredFPSWindowStart = now
		v.measuredFPSWindowCount = 0
	}
	if v.lastMeasuredFPS == 0 {
		return 10
	}
	return v.lastMeasuredFPS
}

func (v *VideoSink) rollSegment(now time.Time, firstFrame *pipelinemodel.WorkflowImage) error {
	v.closeSegment()

	width, height := firstFrame.Width, firstFrame.Height
	if v.cfg.TargetWidth > 0 && v.cfg.TargetHeight > 0 {
		width, height = scalePreservingAspectEven(width, height, v.cfg.TargetWidth, v.cfg.TargetHeight)
	} else {
		width, height = forceEven(width), forceEven(height)
	}

	// The first segment is encoded at 10 FPS, each later one at the
	// last measured FPS. VideoSinkConfig has no FPS option.
	fps := 10.0
	if v.firstSegment {
		v.firstSegment = false
	} else if v.lastMeasuredFPS > 0 {
		fps = v.lastMeasuredFPS
	}

	name := pipelinemodel.SegmentFileName(now)
	path := filepath.Join(v.cfg.OutputDir, name)
	writer, err := newFFmpegWriter(path, width, height, fps)
	if err != nil {
		return fmt.Errorf("sink: open segment writer: %w", err)
	}
	v.writer = writer
	v.segmentStart = now
	v.segmentPath = path
	v.segmentFrames = 0
	return nil
}

func (v *VideoSink) closeSegment() {
	if v.writer == nil {
		return
	}
	path := v.segmentPath
	frames := v.segmentFrames
	created := v.segmentStart
	if err := v.writer.Close(); err != nil {
		obslog.LogError(v.pipelineID, "video sink close segment failed", err, "path", path)
	}
	v.writer = nil

	info, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	v.segments = append(v.segments, pipelinemodel.SegmentFile{
		Path: path, SizeBytes: size, CreatedTime: created, FrameCount: frames,
	})
	pipelinemodel.SortSegmentsByCreated(v.segments)

	// Post-encode optimization runs detached so the writer thread
	// (already moved on to the next segment by the time this fires)
	// is never blocked. On failure the original file is restored by
	// optimizeSegment itself (it only renames over path on success).
	go func() {
		if err := optimizeSegment(path); err != nil {
			obslog.LogError(v.pipelineID, "video sink optimize segment failed", err, "path", path)
		}
	}()
}

// enforceEviction implements rolling eviction: every
// 100 written frames, check total size and filesystem usage ratio;
// if over, delete oldest segments until under 90% of the limit or
// <=100 files remain.
func (v *VideoSink) enforceEviction() {
	total := pipelinemodel.TotalSize(v.segments)
	usageRatio := diskUsageRatio(v.cfg.OutputDir)

	overSize := v.cfg.MaxTotalSize > 0 && total > v.cfg.MaxTotalSize
	overUsage := v.cfg.MaxDiskUsage > 0 && usageRatio > v.cfg.MaxDiskUsage
	if !overSize && !overUsage {
		return
	}

	pipelinemodel.SortSegmentsByCreated(v.segments)
	target := int64(float64(v.cfg.MaxTotalSize) * 0.9)
	for len(v.segments) > 100 && (pipelinemodel.TotalSize(v.segments) > target || overUsage) {
		victim := v.segments[0]
		if err := os.Remove(victim.Path); err != nil && !os.IsNotExist(err) {
			obslog.LogError(v.pipelineID, "video sink evict failed", err, "path", victim.Path)
			break
		}
		v.segments = v.segments[1:]
		overUsage = v.cfg.MaxDiskUsage > 0 && diskUsageRatio(v.cfg.OutputDir) > v.cfg.MaxDiskUsage
	}
}

func diskUsageRatio(path string) float64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 {
		return 0
	}
	used := total - free
	return float64(used) / float64(total)
}

func forceEven(n int) int {
	if n%2 != 0 {
		return n - 1
	}
	return n
}

func scalePreservingAspectEven(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW == 0 || srcH == 0 {
		return forceEven(maxW), forceEven(maxH)
	}
	ratio := float64(srcW) / float64(srcH)
	w, h := maxW, int(float64(maxW)/ratio)
	if h > maxH {
		h = maxH
		w = int(float64(maxH) * ratio)
	}
	return forceEven(w), forceEven(h)
}

func (v *VideoSink) Close(timeout time.Duration) error {
	close(v.queue)
	select {
	case <-v.closed:
	case <-time.After(timeout):
	}
	return nil
}

func (v *VideoSink) Counters() Counters {
	return v.counters.snapshot()
}

// Segments returns a snapshot of tracked segments, for tests and
// monitoring.
func (v *VideoSink) Segments() []pipelinemodel.SegmentFile {
	out := make([]pipelinemodel.SegmentFile, len(v.segments))
	copy(out, v.segments)
	return out
}

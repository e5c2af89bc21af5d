package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// ffmpegWriter pipes raw RGB24 frames into an ffmpeg subprocess that
// encodes them to an mp4 segment, trying codecs in order from
// codecFallbackChain until one is available on this ffmpeg build.
type ffmpegWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	width  int
	height int
	codec  string
}

var codecFallbackChain = []string{"avc1", "h264", "mpeg4", "mjpeg"}

func newFFmpegWriter(path string, width, height int, fps float64) (*ffmpegWriter, error) {
	var lastErr error
	for _, codec := range codecFallbackChain {
		if err := probeEncoder(codec); err != nil {
			lastErr = err
			continue
		}
		w, err := tryOpenFFmpegWriter(path, width, height, fps, codec)
		if err == nil {
			return w, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("sink: no codec in fallback chain succeeded: %w", lastErr)
}

// probeEncoder checks that this ffmpeg binary actually knows codec
// before any frames are committed to it. Starting the subprocess with
// "-c:v" set to an unsupported codec succeeds at cmd.Start(); the
// failure only surfaces later at Wait(), by which point the caller has
// already streamed frames into a dead pipe.
func probeEncoder(codec string) error {
	cmd := exec.Command("ffmpeg", "-hide_banner", "-h", "encoder="+codec)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("ffmpeg encoder %s unavailable: %w: %s", codec, err, stderr.String())
	}
	if bytes.Contains(out.Bytes(), []byte("Unknown encoder")) || bytes.Contains(stderr.Bytes(), []byte("Unknown encoder")) {
		return fmt.Errorf("ffmpeg encoder %s unavailable", codec)
	}
	return nil
}

func tryOpenFFmpegWriter(path string, width, height int, fps float64, codec string) (*ffmpegWriter, error) {
	cmd := exec.Command("ffmpeg",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%f", fps),
		"-i", "pipe:0",
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
		"-y", path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start (%s): %w: %s", codec, err, stderr.String())
	}
	return &ffmpegWriter{cmd: cmd, stdin: stdin, width: width, height: height, codec: codec}, nil
}

func (w *ffmpegWriter) WriteFrame(img *pipelinemodel.WorkflowImage) error {
	if img == nil {
		return nil
	}
	_, err := w.stdin.Write(img.Pix)
	return err
}

func (w *ffmpegWriter) Close() error {
	_ = w.stdin.Close()
	return w.cmd.Wait()
}

// optimizeSegment re-encodes path to H.264 + faststart + 4:2:0. It is
// always run in a detached goroutine by the caller so the writer
// thread is never blocked; on failure the original file is left
// untouched.
func optimizeSegment(path string) error {
	tmp := path + ".optimizing.mp4"
	var stderr bytes.Buffer
	err := ffmpeg.Input(path).
		Output(tmp, ffmpeg.KwArgs{
			"c:v":      "libx264",
			"pix_fmt":  "yuv420p",
			"movflags": "faststart",
		}).
		OverWriteOutput().WithErrorOutput(&stderr).Run()
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sink: optimize segment %s: %w: %s", path, err, stderr.String())
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sink: replace optimized segment %s: %w", path, err)
	}
	return nil
}

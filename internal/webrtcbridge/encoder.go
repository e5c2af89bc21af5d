package webrtcbridge

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// annexBEncoder runs a persistent ffmpeg subprocess translating a
// stream of raw RGB24 composite frames into Annex-B H264 access
// units, one WriteSample call per unit, mirroring VideoSink's
// stdin-piped ffmpeg pattern (internal/sink/video_ffmpeg.go) but
// streaming to a WebRTC track instead of a file.
type annexBEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	width, height int
	pipelineID    string
}

func newAnnexBEncoder(pipelineID string, width, height int, fps float64) (*annexBEncoder, error) {
	cmd := exec.Command("ffmpeg",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%f", fps),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-f", "h264",
		"pipe:1",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("webrtcbridge: start encoder: %w", err)
	}
	return &annexBEncoder{cmd: cmd, stdin: stdin, stdout: stdout, width: width, height: height, pipelineID: pipelineID}, nil
}

func (e *annexBEncoder) WriteFrame(img *pipelinemodel.WorkflowImage) error {
	if img == nil {
		return nil
	}
	_, err := e.stdin.Write(img.Pix)
	return err
}

// Run demuxes the Annex-B byte stream into access units (split on
// 00 00 00 01 start codes) and hands each to onSample, until stdout
// closes. Runs on its own goroutine for the life of the session.
func (e *annexBEncoder) Run(onSample func(data []byte, dur time.Duration)) {
	startCode := []byte{0, 0, 0, 1}
	reader := bufio.NewReaderSize(e.stdout, 1<<20)
	var buf bytes.Buffer
	frameDur := 33 * time.Millisecond

	chunk := make([]byte, 32*1024)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			e.emitCompleteUnits(&buf, startCode, frameDur, onSample)
		}
		if err != nil {
			if err != io.EOF {
				obslog.LogError(e.pipelineID, "webrtc encoder stdout read failed", err)
			}
			return
		}
	}
}

// emitCompleteUnits splits buf on Annex-B start codes, emitting every
// unit except a possibly-incomplete trailing one.
func (e *annexBEncoder) emitCompleteUnits(buf *bytes.Buffer, startCode []byte, dur time.Duration, onSample func([]byte, time.Duration)) {
	data := buf.Bytes()
	var units [][]byte
	start := -1
	for i := 0; i+4 <= len(data); i++ {
		if bytes.Equal(data[i:i+4], startCode) {
			if start >= 0 {
				units = append(units, data[start:i])
			}
			start = i
		}
	}
	if start < 0 {
		return
	}
	for _, u := range units {
		onSample(u, dur)
	}
	buf.Next(start)
}

func (e *annexBEncoder) Close() error {
	_ = e.stdin.Close()
	return e.cmd.Wait()
}

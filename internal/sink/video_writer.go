package sink

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// frameWriter is the narrow interface the VideoSink's writer thread
// drives. Its implementation, ffmpegWriter, pipes raw frames into an
// ffmpeg subprocess on stdin, and ffmpeg writes the mp4 segment file.
type frameWriter interface {
	WriteFrame(img *pipelinemodel.WorkflowImage) error
	Close() error
}

// statsOverlay darkens a fixed top-left bar (up to 220x16 px) of the
// frame. The timestamp and FPS are formatted but no text is drawn, so
// their values do not appear in the pixels.
func statsOverlay(img *pipelinemodel.WorkflowImage, ts time.Time, fps float64) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return
	}
	rgba := &image.RGBA{
		Pix:    expandToRGBA(img.Pix, img.Width, img.Height),
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
	bar := image.Rect(0, 0, min(img.Width, 220), min(img.Height, 16))
	draw.Draw(rgba, bar, &image.Uniform{C: color.RGBA{0, 0, 0, 160}}, image.Point{}, draw.Over)
	img.Pix = collapseFromRGBA(rgba)
	_ = fmt.Sprintf("%s fps=%.1f", ts.Format(time.RFC3339), fps) // formatted only; not drawn into the frame
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// expandToRGBA/collapseFromRGBA convert between the core's row-major
// RGB24 WorkflowImage.Pix and image.RGBA's 4-byte-per-pixel layout.
func expandToRGBA(pix []byte, w, h int) []byte {
	out := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		out[i*4] = pix[i*3]
		out[i*4+1] = pix[i*3+1]
		out[i*4+2] = pix[i*3+2]
		out[i*4+3] = 255
	}
	return out
}

func collapseFromRGBA(rgba *image.RGBA) []byte {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	out := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		out[i*3] = rgba.Pix[i*4]
		out[i*3+1] = rgba.Pix[i*4+1]
		out[i*3+2] = rgba.Pix[i*4+2]
	}
	return out
}

package webrtcbridge

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// slowOverlay stamps a warning band on img, 
// "Workflow too slow" overlay shown after max_consecutive_timeouts
// consecutive drain misses. Mirrors internal/sink's statsOverlay
// technique (uniform color block over the expanded RGBA buffer) since
// this core stays dependency-free for text rendering.
func slowOverlay(img *pipelinemodel.WorkflowImage) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return
	}
	rgba := &image.RGBA{
		Pix:    expandToRGBA(img.Pix, img.Width, img.Height),
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
	band := image.Rect(0, img.Height/2-12, img.Width, img.Height/2+12)
	draw.Draw(rgba, band, &image.Uniform{C: color.RGBA{180, 0, 0, 200}}, image.Point{}, draw.Over)
	img.Pix = collapseFromRGBA(rgba)
}

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

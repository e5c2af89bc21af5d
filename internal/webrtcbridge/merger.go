// Package webrtcbridge implements the per-viewer WebRTC event loop,
// video track, and frame-merger , grounded on
// richinsley-bunghole's pion/webrtc session management (codec
// registration, NewTrackLocalStaticSample, offer/answer exchange),
// adapted from a desktop-capture sender to a multi-source
// inference-frame composite sender.
package webrtcbridge

import (
	"math"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// Layout selects how per-source frames are merged into one composite.
type Layout string

const (
	LayoutGrid       Layout = "grid"
	LayoutHorizontal Layout = "horizontal"
)

// Merge combines frames into one composite image: grid uses
// ceil(sqrt(N)) columns with each cell resized to the max source
// resolution; horizontal concatenates at native per-source size,
// width = sum of widths, height = max height.
func Merge(layout Layout, frames []*pipelinemodel.WorkflowImage) *pipelinemodel.WorkflowImage {
	frames = dropNil(frames)
	if len(frames) == 0 {
		return &pipelinemodel.WorkflowImage{}
	}
	if layout == LayoutHorizontal {
		return mergeHorizontal(frames)
	}
	return mergeGrid(frames)
}

func dropNil(frames []*pipelinemodel.WorkflowImage) []*pipelinemodel.WorkflowImage {
	out := make([]*pipelinemodel.WorkflowImage, 0, len(frames))
	for _, f := range frames {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func mergeHorizontal(frames []*pipelinemodel.WorkflowImage) *pipelinemodel.WorkflowImage {
	width := 0
	height := 0
	for _, f := range frames {
		width += f.Width
		if f.Height > height {
			height = f.Height
		}
	}
	canvas := &pipelinemodel.WorkflowImage{Width: width, Height: height, Pix: make([]byte, width*height*3)}
	xOffset := 0
	for _, f := range frames {
		blit(canvas, f, xOffset, 0)
		xOffset += f.Width
	}
	return canvas
}

// mergeGrid lays frames out in a ceil(sqrt(N)) x ceil(N/cols) grid,
// each cell sized to the max source resolution, with any unfilled
// trailing cells left zero-filled — S6's "bottom-right
// zero-filled" for non-square counts.
func mergeGrid(frames []*pipelinemodel.WorkflowImage) *pipelinemodel.WorkflowImage {
	n := len(frames)
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := int(math.Ceil(float64(n) / float64(cols)))

	cellW, cellH := 0, 0
	for _, f := range frames {
		if f.Width > cellW {
			cellW = f.Width
		}
		if f.Height > cellH {
			cellH = f.Height
		}
	}

	canvas := &pipelinemodel.WorkflowImage{
		Width:  cellW * cols,
		Height: cellH * rows,
		Pix:    make([]byte, cellW*cols*cellH*rows*3),
	}
	for i, f := range frames {
		col := i % cols
		row := i / cols
		resized := resizeToFill(f, cellW, cellH)
		blit(canvas, resized, col*cellW, row*cellH)
	}
	return canvas
}

// resizeToFill nearest-neighbor-resizes src to exactly w x h.
func resizeToFill(src *pipelinemodel.WorkflowImage, w, h int) *pipelinemodel.WorkflowImage {
	if src.Width == w && src.Height == h {
		return src
	}
	out := &pipelinemodel.WorkflowImage{Width: w, Height: h, Pix: make([]byte, w*h*3)}
	for y := 0; y < h; y++ {
		sy := y * src.Height / h
		for x := 0; x < w; x++ {
			sx := x * src.Width / w
			srcIdx := (sy*src.Width + sx) * 3
			dstIdx := (y*w + x) * 3
			if srcIdx+2 < len(src.Pix) {
				copy(out.Pix[dstIdx:dstIdx+3], src.Pix[srcIdx:srcIdx+3])
			}
		}
	}
	return out
}

func blit(dst, src *pipelinemodel.WorkflowImage, xOffset, yOffset int) {
	for y := 0; y < src.Height; y++ {
		dstY := y + yOffset
		if dstY >= dst.Height {
			break
		}
		srcRowStart := y * src.Width * 3
		dstRowStart := (dstY*dst.Width + xOffset) * 3
		n := src.Width * 3
		if xOffset+src.Width > dst.Width {
			n = (dst.Width - xOffset) * 3
		}
		if n <= 0 {
			continue
		}
		copy(dst.Pix[dstRowStart:dstRowStart+n], src.Pix[srcRowStart:srcRowStart+n])
	}
}

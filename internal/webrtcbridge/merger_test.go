package webrtcbridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

func solidImage(w, h int, r, g, b byte) *pipelinemodel.WorkflowImage {
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return &pipelinemodel.WorkflowImage{Width: w, Height: h, Pix: pix}
}

func TestMergeHorizontalConcatenatesAtNativeSize(t *testing.T) {
	a := solidImage(4, 2, 1, 0, 0)
	b := solidImage(6, 3, 0, 1, 0)

	out := Merge(LayoutHorizontal, []*pipelinemodel.WorkflowImage{a, b})

	require.Equal(t, 10, out.Width)
	require.Equal(t, 3, out.Height)
	require.Equal(t, byte(1), out.Pix[0])
	require.Equal(t, byte(1), out.Pix[(0*out.Width+4)*3+1])
}

func TestMergeGridUsesCeilSqrtColumns(t *testing.T) {
	frames := make([]*pipelinemodel.WorkflowImage, 3)
	for i := range frames {
		frames[i] = solidImage(2, 2, byte(i), 0, 0)
	}

	out := Merge(LayoutGrid, frames)

	// ceil(sqrt(3)) = 2 columns, ceil(3/2) = 2 rows, each cell 2x2.
	require.Equal(t, 4, out.Width)
	require.Equal(t, 4, out.Height)
}

func TestMergeDropsNilFrames(t *testing.T) {
	a := solidImage(2, 2, 9, 9, 9)
	out := Merge(LayoutHorizontal, []*pipelinemodel.WorkflowImage{nil, a, nil})
	require.Equal(t, 2, out.Width)
	require.Equal(t, 2, out.Height)
}

func TestMergeEmptyReturnsZeroImage(t *testing.T) {
	out := Merge(LayoutGrid, nil)
	require.Equal(t, 0, out.Width)
	require.Equal(t, 0, out.Height)
}

func TestMergeGridZeroFillsUnfilledTrailingCells(t *testing.T) {
	frames := []*pipelinemodel.WorkflowImage{
		solidImage(2, 2, 5, 5, 5),
		solidImage(2, 2, 5, 5, 5),
		solidImage(2, 2, 5, 5, 5),
	}
	out := Merge(LayoutGrid, frames)

	// Cell (1,1) in a 2x2 grid is never written; it must stay zero.
	bottomRightIdx := ((out.Height - 1) * out.Width + (out.Width - 1)) * 3
	require.Equal(t, byte(0), out.Pix[bottomRightIdx])
}

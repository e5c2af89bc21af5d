package webrtcbridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

func TestSlowOverlayStampsABandAcrossVerticalCenter(t *testing.T) {
	img := solidImage(20, 40, 0, 0, 0)

	slowOverlay(img)

	centerIdx := (20*20 + 10) * 3
	require.Equal(t, byte(180), img.Pix[centerIdx])
	require.Equal(t, byte(0), img.Pix[centerIdx+1])
	require.Equal(t, byte(0), img.Pix[centerIdx+2])

	// Far from the band, pixels stay untouched.
	topIdx := 10 * 3
	require.Equal(t, byte(0), img.Pix[topIdx])
}

func TestSlowOverlayToleratesNilAndEmptyImages(t *testing.T) {
	require.NotPanics(t, func() { slowOverlay(nil) })
	require.NotPanics(t, func() { slowOverlay(&pipelinemodel.WorkflowImage{}) })
}

func TestExpandAndCollapseRGBARoundTrip(t *testing.T) {
	pix := []byte{10, 20, 30, 40, 50, 60}
	expanded := expandToRGBA(pix, 2, 1)
	require.Len(t, expanded, 8)
	require.Equal(t, byte(255), expanded[3])
	require.Equal(t, byte(255), expanded[7])
}

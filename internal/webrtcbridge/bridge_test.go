package webrtcbridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

func newTestBridge() *Bridge {
	return &Bridge{cfg: Config{
		PipelineID:             "p1",
		ViewerID:               "v1",
		MaxConsecutiveTimeouts: 3,
		MinConsecutiveOnTime:   2,
	}}
}

func TestOnTimeoutIncrementsAndResetsOnTimeStreak(t *testing.T) {
	b := newTestBridge()
	b.consecutiveOnTime = 5

	b.onTimeout()

	require.Equal(t, 1, b.consecutiveTimeouts)
	require.Equal(t, 0, b.consecutiveOnTime)
}

func TestOnTimeoutSkipsOverlayWriteWithoutLastGoodFrame(t *testing.T) {
	b := newTestBridge()
	for i := 0; i < 5; i++ {
		b.onTimeout()
	}
	// No lastGoodFrame and no encoder configured — must not panic.
	require.Equal(t, 5, b.consecutiveTimeouts)
}

func TestOnOnTimeResetsTimeoutStreakOnlyAfterThreshold(t *testing.T) {
	b := newTestBridge()
	b.consecutiveTimeouts = 10

	b.onOnTime()
	require.Equal(t, 10, b.consecutiveTimeouts, "one on-time tick below MinConsecutiveOnTime must not reset yet")

	b.onOnTime()
	require.Equal(t, 0, b.consecutiveTimeouts, "reaching MinConsecutiveOnTime resets the timeout streak")
}

func TestSelectStreamOutputPrefersConfiguredField(t *testing.T) {
	b := newTestBridge()
	b.cfg.StreamOutput = "overlay"

	overlayImg := &pipelinemodel.WorkflowImage{Width: 1}
	rawImg := &pipelinemodel.WorkflowImage{Width: 2}
	frame := pipelinemodel.FrameEnvelope{
		Image: rawImg,
		Prediction: pipelinemodel.Prediction{
			"overlay": pipelinemodel.PredictionValue{Image: overlayImg},
		},
	}

	require.Same(t, overlayImg, b.selectStreamOutput(frame))
}

func TestSelectStreamOutputFallsBackToAnyPredictionImage(t *testing.T) {
	b := newTestBridge()
	b.cfg.StreamOutput = "missing"

	someImg := &pipelinemodel.WorkflowImage{Width: 7}
	frame := pipelinemodel.FrameEnvelope{
		Prediction: pipelinemodel.Prediction{
			"other": pipelinemodel.PredictionValue{Image: someImg},
		},
	}

	require.Same(t, someImg, b.selectStreamOutput(frame))
}

func TestSelectStreamOutputFallsBackToRawFrame(t *testing.T) {
	b := newTestBridge()
	rawImg := &pipelinemodel.WorkflowImage{Width: 3}
	frame := pipelinemodel.FrameEnvelope{Image: rawImg}

	require.Same(t, rawImg, b.selectStreamOutput(frame))
}

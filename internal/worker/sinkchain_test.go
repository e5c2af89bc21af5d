package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOrDefaultUsesValueWhenPositive(t *testing.T) {
	require.Equal(t, 5, orDefault(5, 10))
}

func TestOrDefaultFallsBackWhenZeroOrNegative(t *testing.T) {
	require.Equal(t, 10, orDefault(0, 10))
	require.Equal(t, 10, orDefault(-3, 10))
}

func TestSecondsToDurationConvertsFractionalSeconds(t *testing.T) {
	require.Equal(t, 1500*time.Millisecond, secondsToDuration(1.5))
}

func TestSecondsToDurationOrFallsBackOnNonPositive(t *testing.T) {
	require.Equal(t, 2*time.Second, secondsToDurationOr(0, 2*time.Second))
	require.Equal(t, 2*time.Second, secondsToDurationOr(-1, 2*time.Second))
	require.Equal(t, 500*time.Millisecond, secondsToDurationOr(0.5, 2*time.Second))
}

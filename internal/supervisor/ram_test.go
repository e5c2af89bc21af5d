package supervisor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleRSSReadsOwnProcess(t *testing.T) {
	rss, err := sampleRSS(os.Getpid())
	require.NoError(t, err)
	require.Greater(t, rss, int64(0))
}

func TestSampleRSSRejectsInvalidPID(t *testing.T) {
	_, err := sampleRSS(0)
	require.Error(t, err)

	_, err = sampleRSS(-1)
	require.Error(t, err)
}

func TestSampleRSSErrorsForNonexistentPID(t *testing.T) {
	// PID 2^30 is never a real process id.
	_, err := sampleRSS(1 << 30)
	require.Error(t, err)
}

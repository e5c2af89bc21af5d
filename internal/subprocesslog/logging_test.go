package subprocesslog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamOutputCopiesCompleteLines(t *testing.T) {
	src := strings.NewReader("first line\nsecond line\n")
	var out bytes.Buffer

	streamOutput(src, &out)

	require.Equal(t, "first line\nsecond line\n", out.String())
}

func TestStreamOutputStopsOnIncompleteTrailingLine(t *testing.T) {
	src := strings.NewReader("complete\nincomplete no newline")
	var out bytes.Buffer

	streamOutput(src, &out)

	require.Equal(t, "complete\n", out.String())
}

func TestStreamOutputOnEmptyInputWritesNothing(t *testing.T) {
	var out bytes.Buffer
	streamOutput(strings.NewReader(""), &out)
	require.Empty(t, out.String())
}

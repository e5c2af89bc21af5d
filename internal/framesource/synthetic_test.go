package framesource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

func TestNextRoundRobinsAcrossSources(t *testing.T) {
	s := New(Config{SourceIDs: []string{"a", "b"}, FrameRate: time.Millisecond})
	ctx := context.Background()

	first, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NotEqual(t, first.SourceID, second.SourceID)
	require.ElementsMatch(t, []string{"a", "b"}, []string{first.SourceID, second.SourceID})
}

func TestNextStopsEmittingAfterFrameLimit(t *testing.T) {
	s := New(Config{SourceIDs: []string{"only"}, FrameRate: time.Millisecond, FrameLimit: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for i := 0; i < 2; i++ {
		_, ok, err := s.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	statuses := s.Sources()
	require.Len(t, statuses, 1)
	require.Equal(t, pipelinemodel.SourceEnded, statuses[0].State)
}

func TestMuteSuspendsFrameProduction(t *testing.T) {
	s := New(Config{SourceIDs: []string{"a"}, FrameRate: time.Millisecond})
	s.Mute()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := s.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, ok)
}

func TestResumeAfterMuteProducesFramesAgain(t *testing.T) {
	s := New(Config{SourceIDs: []string{"a"}, FrameRate: time.Millisecond})
	s.Mute()
	s.Resume()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCloseEndsProductionImmediately(t *testing.T) {
	s := New(Config{SourceIDs: []string{"a"}, FrameRate: time.Millisecond})
	require.NoError(t, s.Close())

	_, ok, err := s.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

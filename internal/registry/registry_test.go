package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListWithNoGroupReturnsEverything(t *testing.T) {
	all := List("")
	require.NotEmpty(t, all)

	var sawBackend, sawPatch, sawWorkflow bool
	for _, e := range all {
		switch e.Group {
		case GroupBackends:
			sawBackend = true
		case GroupPatches:
			sawPatch = true
		case GroupWorkflows:
			sawWorkflow = true
		}
	}
	require.True(t, sawBackend)
	require.True(t, sawPatch)
	require.True(t, sawWorkflow)
}

func TestListFiltersByGroup(t *testing.T) {
	backends := List(GroupBackends)
	require.NotEmpty(t, backends)
	for _, e := range backends {
		require.Equal(t, GroupBackends, e.Group)
	}
}

func TestListMutatingResultDoesNotAffectLaterCalls(t *testing.T) {
	first := List("")
	first[0].Name = "tampered"

	second := List("")
	require.NotEqual(t, "tampered", second[0].Name)
}

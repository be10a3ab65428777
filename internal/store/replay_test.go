package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

func TestStore_Replay_RequiresEpisode(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Replay(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "episode token required")
}

func TestStore_Replay_MergesTransitionsFirstWithinTick(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.OpenEpisode(ctx, "ep-1", 10))
	require.NoError(t, s.AppendEntries(ctx, []fault.LogEntry{
		testEntry(1, 10, fault.KindCommsTimeout, fault.SeverityPersistent, "ep-1"),
		testEntry(2, 12, fault.KindSensorImplausible, fault.SeverityTransient, "ep-1"),
	}))
	require.NoError(t, s.AppendTransitions(ctx, []fault.Transition{
		testTransition(fault.StateNormal, fault.StateDegraded, 10, "ep-1"),
		testTransition(fault.StateDegraded, fault.StateNormal, 30, "ep-1"),
	}))

	stream, err := s.Replay(ctx, "ep-1")
	require.NoError(t, err)
	require.Len(t, stream, 4)

	// Tick 10: the state change precedes the diagnostics recorded
	// under it.
	require.NotNil(t, stream[0].Transition)
	assert.Equal(t, uint64(10), stream[0].Tick)
	assert.Equal(t, fault.StateDegraded, stream[0].Transition.To)

	require.NotNil(t, stream[1].Entry)
	assert.Equal(t, uint64(10), stream[1].Tick)
	assert.Equal(t, fault.KindCommsTimeout, stream[1].Entry.Record.Kind)

	require.NotNil(t, stream[2].Entry)
	assert.Equal(t, uint64(12), stream[2].Tick)

	require.NotNil(t, stream[3].Transition)
	assert.Equal(t, uint64(30), stream[3].Tick)
	assert.Equal(t, fault.StateNormal, stream[3].Transition.To)
}

func TestStore_Replay_Deterministic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEntries(ctx, []fault.LogEntry{
		testEntry(1, 5, fault.KindCommsTimeout, fault.SeverityTransient, "ep-1"),
	}))
	require.NoError(t, s.AppendTransitions(ctx, []fault.Transition{
		testTransition(fault.StateNormal, fault.StateDegraded, 5, "ep-1"),
	}))

	first, err := s.Replay(ctx, "ep-1")
	require.NoError(t, err)
	second, err := s.Replay(ctx, "ep-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_Replay_EmptyEpisode(t *testing.T) {
	s := openTestStore(t)
	stream, err := s.Replay(context.Background(), "never-opened")
	require.NoError(t, err)
	assert.Empty(t, stream)
}

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSessionBudget(t *testing.T) {
	assert.NoError(t, checkSessionBudget(SessionStartLimit{Remaining: 5}, 3))
	assert.Error(t, checkSessionBudget(SessionStartLimit{Remaining: 3}, 3))
	assert.Error(t, checkSessionBudget(SessionStartLimit{Remaining: 2}, 3))
}

func TestNewCoordinator_RequiresToken(t *testing.T) {
	_, err := NewCoordinator(CoordinatorConfig{})
	assert.ErrorIs(t, err, ErrNoTokenProvided)
}

func TestSpawnFleet_StaggersAndPopulatesShards(t *testing.T) {
	co, err := NewCoordinator(CoordinatorConfig{
		Token:             "tok",
		IdentifyStaggerMs: 5,
		Log:               zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, co.spawnFleet(ctx, 3))
	elapsed := time.Since(start)

	assert.Len(t, co.shards, 3)
	assert.Len(t, co.controls, 3)
	assert.Len(t, co.stops, 3)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)

	co.shutdownFleet()
	assert.Empty(t, co.shards)
	assert.Empty(t, co.controls)
	assert.Empty(t, co.stops)
}

func TestSpawnFleet_CancelledContextStopsEarly(t *testing.T) {
	co, err := NewCoordinator(CoordinatorConfig{
		Token:             "tok",
		IdentifyStaggerMs: 50,
		Log:               zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = co.spawnFleet(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, co.shards, 1, "the first shard spawns before the stagger wait is ever reached")

	co.shutdownFleet()
}

func TestCoordinator_SendFrame(t *testing.T) {
	co, err := NewCoordinator(CoordinatorConfig{Token: "tok", Log: zerolog.Nop()})
	require.NoError(t, err)

	control := make(chan controlMessage, 1)
	co.controls[0] = control

	require.NoError(t, co.SendFrame(0, []byte(`{"op":1}`)))
	select {
	case cmd := <-control:
		assert.Equal(t, controlSendFrame, cmd.kind)
		assert.Equal(t, []byte(`{"op":1}`), cmd.frame)
	default:
		t.Fatal("expected SendFrame to enqueue a controlSendFrame command")
	}

	err = co.SendFrame(99, []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownShard)
}

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishTick_DropsOldestWhenFull(t *testing.T) {
	tick := make(chan struct{}, 1)
	done := make(chan struct{})
	defer close(done)

	publishTick(tick, done)
	publishTick(tick, done)

	select {
	case <-tick:
	default:
		t.Fatal("expected a pending tick")
	}

	select {
	case <-tick:
		t.Fatal("expected only one pending tick, drop-oldest should have collapsed the second publish")
	default:
	}
}

func TestStartHeartbeatEngine_TicksAtInterval(t *testing.T) {
	tick := make(chan struct{}, 1)
	done := make(chan struct{})
	defer close(done)

	startHeartbeatEngine(20, tick, done)

	select {
	case <-tick:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected a heartbeat tick within the interval window")
	}
}

func TestStartHeartbeatEngine_ClosesTickOnDone(t *testing.T) {
	tick := make(chan struct{}, 1)
	done := make(chan struct{})

	startHeartbeatEngine(5, tick, done)
	close(done)

	select {
	case _, ok := <-tick:
		assert.False(t, ok, "the engine goroutine should close tick itself once done fires")
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected tick to be closed shortly after done fired")
	}
}

func TestStopHeartbeat_ClearsHandlesAndStopsEngine(t *testing.T) {
	shard := startHeartbeat(testShard(), 5)
	require.NotNil(t, shard.heartbeatTick)
	require.NotNil(t, shard.heartbeatDone)

	stopHeartbeat(shard)

	assert.Nil(t, shard.heartbeatTick)
	assert.Nil(t, shard.heartbeatDone)
}

func TestPersistSession_SkipsEmptyState(t *testing.T) {
	store := &recordingStore{}
	shard := testShard()

	persistSession(shard, store)

	assert.Equal(t, 0, store.saves)
}

func TestPersistSession_SavesWhenSessionKnown(t *testing.T) {
	store := &recordingStore{}
	shard := testShard()
	shard.SessionID = "sess"
	shard.SeqSet = true
	shard.Seq = 3

	persistSession(shard, store)

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "sess", store.lastSessionID)
	assert.EqualValues(t, 3, store.lastSeq)
}

type recordingStore struct {
	saves         int
	lastSessionID string
	lastSeq       int64
}

func (r *recordingStore) Load(ctx context.Context, shardID int) (string, int64, bool, error) {
	return "", 0, false, nil
}

func (r *recordingStore) Save(ctx context.Context, shardID int, sessionID string, seq int64) error {
	r.saves++
	r.lastSessionID = sessionID
	r.lastSeq = seq
	return nil
}

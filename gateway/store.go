package gateway

import "context"

// SessionStore persists a shard's (session_id, seq) pair across process
// restarts (SPEC_FULL.md §4.8, D1). runShard loads it into the shard when it
// starts; that shard has no stop code yet, so shouldResume is false and its
// first connect identifies. The core depends only on
// this interface; github.com/sandwichrt/shardgate/store provides a
// Redis-backed implementation.
type SessionStore interface {
	Load(ctx context.Context, shardID int) (sessionID string, seq int64, seqSet bool, err error)
	Save(ctx context.Context, shardID int, sessionID string, seq int64) error
}

// NullSessionStore never persists anything; resume only works within the
// lifetime of a single process. It is the zero-config default.
type NullSessionStore struct{}

func (NullSessionStore) Load(ctx context.Context, shardID int) (string, int64, bool, error) {
	return "", 0, false, nil
}

func (NullSessionStore) Save(ctx context.Context, shardID int, sessionID string, seq int64) error {
	return nil
}

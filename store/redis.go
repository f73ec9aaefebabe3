package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/sandwichrt/shardgate/gateway"
)

// RedisSessionStore persists (session_id, seq) pairs across process
// restarts, implementing gateway.SessionStore (SPEC_FULL.md D1).
//
// Adapted from the teacher's gateway.Manager.RedisClient construction
// (gateway/manager.go) and its RediScripts helper (gateway/state.go): the
// teacher opened a single *redis.Client and drove ad-hoc Lua/SCAN against
// it; here that client is scoped to exactly the hash this store owns.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore wires a *redis.Client the same way the teacher's
// Manager did (redis.Options{Addr, Password, DB}), but leaves construction
// of that client to the caller so tests can point it at a miniredis
// instance. prefix namespaces the hash keys, defaulting to "shardgate" when
// empty.
func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "shardgate"
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

var _ gateway.SessionStore = (*RedisSessionStore)(nil)

func (s *RedisSessionStore) key(shardID int) string {
	return fmt.Sprintf("%s:shard:%d", s.prefix, shardID)
}

// Load reads the hash written by Save. A missing key (fresh shard, or a
// store that was cleared) is not an error: it simply yields sessionID="".
func (s *RedisSessionStore) Load(ctx context.Context, shardID int) (string, int64, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(shardID)).Result()
	if err != nil {
		return "", 0, false, fmt.Errorf("redis session store: load shard %d: %w", shardID, err)
	}
	if len(res) == 0 {
		return "", 0, false, nil
	}

	sessionID := res["session_id"]
	seqStr, seqSet := res["seq"]
	if !seqSet || seqStr == "" {
		return sessionID, 0, false, nil
	}

	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return "", 0, false, fmt.Errorf("redis session store: parse seq for shard %d: %w", shardID, err)
	}
	return sessionID, seq, true, nil
}

// Save writes the pair with HSET, the same primitive the teacher used for
// every piece of cached gateway state (marshal.go).
func (s *RedisSessionStore) Save(ctx context.Context, shardID int, sessionID string, seq int64) error {
	err := s.client.HSet(ctx, s.key(shardID), map[string]interface{}{
		"session_id": sessionID,
		"seq":        strconv.FormatInt(seq, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis session store: save shard %d: %w", shardID, err)
	}
	return nil
}

// ClearKeys removes every hash key matching pattern, using the same
// SCAN-then-DEL Lua script the teacher's RediScripts.ClearKeys ran against
// its broader guild/user cache (gateway/state.go). The scan is limited to
// hash keys but not to this store's prefix: pattern alone decides which
// keys match.
func (s *RedisSessionStore) ClearKeys(ctx context.Context, pattern string) (int64, error) {
	res, err := s.client.Eval(ctx, `
		local count, cursor = 0, "0"
		while true do
			local req = redis.call("SCAN", cursor, "MATCH", ARGV[1], "COUNT", ARGV[2], "TYPE", "hash")
			if #req[2] > 0 then redis.call("DEL", unpack(req[2])) end
			count, cursor = count + #req[2], req[1]
			if cursor == "0" then break end
		end
		return count
	`, []string{}, pattern, 64).Result()
	if err != nil {
		return 0, fmt.Errorf("redis session store: clear keys: %w", err)
	}
	count, _ := res.(int64)
	return count, nil
}

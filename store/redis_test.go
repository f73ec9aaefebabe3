package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisSessionStore_DefaultsPrefix(t *testing.T) {
	s := NewRedisSessionStore(nil, "")
	assert.Equal(t, "shardgate:shard:3", s.key(3))
}

func TestNewRedisSessionStore_CustomPrefix(t *testing.T) {
	s := NewRedisSessionStore(nil, "myfleet")
	assert.Equal(t, "myfleet:shard:0", s.key(0))
}

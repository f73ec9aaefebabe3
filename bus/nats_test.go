package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack"
)

func TestEncodeEnvelope_RoundTrips(t *testing.T) {
	body, err := encodeEnvelope(2, "MESSAGE_CREATE", 7, []byte(`{"id":"1"}`))
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, msgpack.Unmarshal(body, &env))
	assert.Equal(t, "MESSAGE_CREATE", env.Type)

	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, data["shard_id"])
	assert.EqualValues(t, 7, data["s"])
}

func TestNewNatsBus_DefaultsSubject(t *testing.T) {
	b := NewNatsBus(nil, nil, "")
	assert.Equal(t, "shardgate.events", b.subject)
}

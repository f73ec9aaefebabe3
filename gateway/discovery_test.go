package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandwichrt/shardgate/client"
)

func TestDiscoverGateway_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"wss://gateway.example.com","shards":4,"session_start_limit":{"total":1000,"remaining":998,"reset_after":86400000,"max_concurrency":1}}`))
	}))
	defer srv.Close()

	rest := client.NewClient("tok")
	rest.URLHost = srv.Listener.Addr().String()
	rest.URLScheme = "http"

	info, err := discoverGateway(context.Background(), rest)
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway.example.com", info.URL)
	assert.Equal(t, 4, info.ShardCount)
	assert.Equal(t, 998, info.SessionLimit.Remaining)
}

func TestDiscoverGateway_MissingURLIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"shards":4,"session_start_limit":{"total":1000,"remaining":998,"reset_after":86400000,"max_concurrency":1}}`))
	}))
	defer srv.Close()

	rest := client.NewClient("tok")
	rest.URLHost = srv.Listener.Addr().String()
	rest.URLScheme = "http"

	_, err := discoverGateway(context.Background(), rest)
	assert.ErrorIs(t, err, ErrNoGatewayURL)
}

func TestDialURL_AppendsVersionAndEncoding(t *testing.T) {
	assert.Equal(t, "wss://gateway.example.com?v=10&encoding=json", dialURL("wss://gateway.example.com"))
}

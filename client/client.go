package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnauthorized is returned when the gateway rejects the bot token.
var ErrUnauthorized = errors.New("client: invalid token passed")

// Client is the thin REST wrapper C2 (gateway discovery) uses; it is
// deliberately narrow — shardgate has no Non-goal-violating guild/user REST
// surface, just enough to reach /gateway/bot (SPEC_FULL.md D3).
//
// Adapted from the teacher's client.Client/FetchJSON/HandleRequest.
type Client struct {
	Token string

	HTTP    *http.Client
	Buckets *sync.Map

	APIVersion string

	URLHost   string
	URLScheme string
	UserAgent string
}

// NewClient makes a new client pointed at the Discord-compatible gateway
// host, defaulting to the current API version.
func NewClient(token string) *Client {
	return &Client{
		Token:      token,
		HTTP:       http.DefaultClient,
		APIVersion: "10",
		URLHost:    "discord.com",
		URLScheme:  "https",
	}
}

// FetchJSON issues method against url and decodes the JSON response body
// into structure.
func (c *Client) FetchJSON(ctx context.Context, method, url string, body io.Reader, structure interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	res, err := c.HandleRequest(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	return json.NewDecoder(res.Body).Decode(structure)
}

// HandleRequest fills in the host/scheme/auth/user-agent defaults and
// performs the request.
func (c *Client) HandleRequest(req *http.Request) (*http.Response, error) {
	req.URL.Path = "/api/v" + c.APIVersion + req.URL.Path
	if req.URL.Host == "" {
		req.URL.Host = c.URLHost
	}
	if req.URL.Scheme == "" {
		req.URL.Scheme = c.URLScheme
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bot "+c.Token)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode == http.StatusUnauthorized {
		res.Body.Close()
		return nil, ErrUnauthorized
	}

	return res, nil
}

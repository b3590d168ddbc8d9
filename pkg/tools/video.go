package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// videoCacheTTL bounds how long a video lookup is reused. The UI can trigger
// the same lookup twice in quick succession; anything inside the window is
// served from cache.
const videoCacheTTL = 10 * time.Second

type VideoArgs struct {
	Query string `json:"query" jsonschema:"description=The query to search videos for"`
}

type VideoResults struct {
	Query   string          `json:"query"`
	Results json.RawMessage `json:"results"`
}

// VideoClient queries the video search backend with a short-lived cache
// keyed by query. Expired entries are dropped when read.
type VideoClient struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]videoEntry
}

type videoEntry struct {
	results json.RawMessage
	expires time.Time
}

type VideoOption func(*VideoClient)

func WithVideoTTL(ttl time.Duration) VideoOption {
	return func(c *VideoClient) { c.ttl = ttl }
}

func WithVideoHTTPClient(client *http.Client) VideoOption {
	return func(c *VideoClient) { c.client = client }
}

// withVideoClock is used by tests to control expiry.
func withVideoClock(now func() time.Time) VideoOption {
	return func(c *VideoClient) { c.now = now }
}

func NewVideoClient(baseURL string, options ...VideoOption) *VideoClient {
	c := &VideoClient{
		baseURL: baseURL,
		client:  http.DefaultClient,
		ttl:     videoCacheTTL,
		now:     time.Now,
		cache:   make(map[string]videoEntry),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *VideoClient) cached(query string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[query]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.cache, query)
		return nil, false
	}
	return entry.results, true
}

func (c *VideoClient) store(query string, results json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[query] = videoEntry{results: results, expires: c.now().Add(c.ttl)}
}

func (c *VideoClient) Search(ctx context.Context, query string) (*VideoResults, error) {
	if results, ok := c.cached(query); ok {
		log.Debug().Str("query", query).Msg("video search served from cache")
		return &VideoResults{Query: query, Results: results}, nil
	}

	target := c.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build video request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute video request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("video API returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read video response")
	}
	if !json.Valid(raw) {
		return nil, errors.New("video API returned invalid JSON")
	}

	c.store(query, raw)
	return &VideoResults{Query: query, Results: raw}, nil
}

// NewVideoTool builds the video search tool. Registered only when enabled in
// the settings.
func NewVideoTool(client *VideoClient) Definition {
	return Definition{
		Name:        "videoSearch",
		Description: "Search for videos related to the query",
		Parameters:  ReflectSchema(&VideoArgs{}),
		Execute: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args VideoArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, errors.Wrap(err, "decode video arguments")
			}
			return client.Search(ctx, args.Query)
		},
	}
}

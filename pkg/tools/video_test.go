package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoSearchCacheWindow(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, `[{"title":"clip %d"}]`, hits)
	}))
	defer server.Close()

	now := time.Now()
	clock := func() time.Time { return now }
	client := NewVideoClient(server.URL, WithVideoTTL(10*time.Second), withVideoClock(clock))

	first, err := client.Search(context.Background(), "go talks")
	require.NoError(t, err)

	// inside the window the backend is not hit again
	second, err := client.Search(context.Background(), "go talks")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Equal(t, string(first.Results), string(second.Results))

	// a different query misses the cache
	_, err = client.Search(context.Background(), "rust talks")
	require.NoError(t, err)
	assert.Equal(t, 2, hits)

	// after the window the entry expires and is refetched
	now = now.Add(11 * time.Second)
	third, err := client.Search(context.Background(), "go talks")
	require.NoError(t, err)
	assert.Equal(t, 3, hits)
	assert.NotEqual(t, string(first.Results), string(third.Results))
}

func TestVideoSearchInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer server.Close()

	client := NewVideoClient(server.URL)
	_, err := client.Search(context.Background(), "go talks")
	require.Error(t, err)
}

func TestRetrieveExtractsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Go FAQ</title><script>var x = 1;</script></head>
			<body><h1>FAQ</h1><p>Go  is   expressive.</p><style>.x{}</style></body></html>`)
	}))
	defer server.Close()

	res, err := Retrieve(context.Background(), nil, server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Go FAQ", res.Title)
	assert.Equal(t, "FAQ Go is expressive.", res.Content)
}

func TestRetrieveTruncates(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "abc", truncateRunes("abcdef", 3))
}

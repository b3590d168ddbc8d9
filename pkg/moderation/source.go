package moderation

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/viant/afs"
)

// TermSource supplies the sensitive-term map. Each fetch returns the full
// map; callers replace their copy wholesale, no merging.
type TermSource interface {
	Fetch(ctx context.Context) (map[string]string, error)
}

// AFSSource reads a JSON object of term replacements from a storage URL
// (file://, s3://, mem://).
type AFSSource struct {
	service afs.Service
	url     string
}

func NewAFSSource(url string) *AFSSource {
	return &AFSSource{service: afs.New(), url: url}
}

func (s *AFSSource) Fetch(ctx context.Context) (map[string]string, error) {
	data, err := s.service.DownloadWithURL(ctx, s.url)
	if err != nil {
		return nil, errors.Wrapf(err, "download terms from %s", s.url)
	}
	terms := map[string]string{}
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, errors.Wrap(err, "decode terms")
	}
	return terms, nil
}

var _ TermSource = (*AFSSource)(nil)

// RedisSource reads the term map from a redis hash.
type RedisSource struct {
	client *redis.Client
	key    string
}

func NewRedisSource(client *redis.Client, key string) *RedisSource {
	return &RedisSource{client: client, key: key}
}

func (s *RedisSource) Fetch(ctx context.Context) (map[string]string, error) {
	terms, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "read terms from redis key %s", s.key)
	}
	return terms, nil
}

var _ TermSource = (*RedisSource)(nil)

// StaticSource serves a fixed map, for tests and defaults.
type StaticSource map[string]string

func (s StaticSource) Fetch(context.Context) (map[string]string, error) {
	return s, nil
}

var _ TermSource = StaticSource{}

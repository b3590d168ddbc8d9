package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/viant/afs"
)

// Record is the persistence payload handed to the store once a conversation
// holds an answer. The format is opaque to the rest of the core.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    string    `json:"userId"`
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// Store persists finalized conversation records.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, chatID string) (*Record, error)
}

// AFSStore saves records as JSON documents under a base URL. The URL scheme
// selects the backend (file://, s3://, mem://), so one implementation covers
// local files and object storage.
type AFSStore struct {
	service afs.Service
	baseURL string
}

// NewAFSStore creates a store rooted at baseURL.
func NewAFSStore(baseURL string) *AFSStore {
	return &AFSStore{
		service: afs.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *AFSStore) recordURL(chatID string) string {
	return s.baseURL + "/" + chatID + ".json"
}

// Save writes the record, replacing any previous version.
func (s *AFSStore) Save(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal chat record")
	}
	URL := s.recordURL(record.ID)
	if err := s.service.Upload(ctx, URL, 0o644, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "upload chat record to %s", URL)
	}
	log.Debug().Str("url", URL).Int("messages", len(record.Messages)).Msg("saved chat record")
	return nil
}

// Load reads a previously saved record.
func (s *AFSStore) Load(ctx context.Context, chatID string) (*Record, error) {
	URL := s.recordURL(chatID)
	data, err := s.service.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, errors.Wrapf(err, "download chat record from %s", URL)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "unmarshal chat record")
	}
	return &record, nil
}

var _ Store = (*AFSStore)(nil)

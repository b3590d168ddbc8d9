package events

import (
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EventSink receives events produced during a turn. Implementations must be
// safe for concurrent use.
type EventSink interface {
	PublishEvent(e Event) error
}

// NullSink drops everything.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error { return nil }

var _ EventSink = NullSink{}

// WatermillSink publishes events as JSON messages on a watermill topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

func (w *WatermillSink) PublishEvent(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := message.NewMessage(uuid.NewString(), b)
	return w.publisher.Publish(w.topic, msg)
}

var _ EventSink = (*WatermillSink)(nil)

// CollectSink records every published event, for tests.
type CollectSink struct {
	mu     sync.Mutex
	events []Event
}

func NewCollectSink() *CollectSink {
	return &CollectSink{}
}

func (c *CollectSink) PublishEvent(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *CollectSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

var _ EventSink = (*CollectSink)(nil)

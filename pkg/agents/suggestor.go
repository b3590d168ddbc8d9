package agents

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/events"
	"github.com/kaledar/morphic/pkg/model"
	"github.com/kaledar/morphic/pkg/tools"
)

// Suggestor proposes follow-up queries after an answer. In assistant mode
// the remote thread already holds the conversation, so only the first user
// message is sent; otherwise the last message is re-roled to user so the
// generation prompt always ends on a user turn.
type Suggestor struct {
	model         model.Model
	sink          events.EventSink
	assistantMode bool
}

func NewSuggestor(m model.Model, sink events.EventSink, assistantMode bool) *Suggestor {
	return &Suggestor{model: m, sink: sink, assistantMode: assistantMode}
}

func (s *Suggestor) window(messages []chat.Message) []chat.Message {
	if s.assistantMode {
		for _, msg := range messages {
			if msg.Role == chat.RoleUser {
				return []chat.Message{msg}
			}
		}
		return nil
	}
	if len(messages) == 0 {
		return nil
	}
	last := messages[len(messages)-1]
	last.Role = chat.RoleUser
	return []chat.Message{last}
}

func (s *Suggestor) Suggest(ctx context.Context, meta events.EventMetadata, messages []chat.Message) (*Related, error) {
	window := s.window(messages)
	if len(window) == 0 {
		return nil, errors.New("no messages to suggest from")
	}

	parts, err := s.model.Stream(ctx, model.Request{
		System:   suggestorPrompt,
		Messages: window,
		Output: &model.OutputSchema{
			Name:   "related",
			Schema: tools.ReflectSchema(&Related{}),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start suggestion stream")
	}

	var accumulated string
	for part := range parts {
		switch part.Type {
		case model.PartTypeTextDelta:
			accumulated += part.TextDelta
			_ = s.sink.PublishEvent(events.NewRelatedDeltaEvent(meta, accumulated))
		case model.PartTypeError:
			return nil, part.Err
		}
	}

	related := &Related{}
	if err := json.Unmarshal([]byte(accumulated), related); err != nil {
		return nil, errors.Wrap(err, "parse related queries")
	}
	if len(related.Items) > maxRelatedQueries {
		related.Items = related.Items[:maxRelatedQueries]
	}
	return related, nil
}

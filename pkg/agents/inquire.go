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

// Inquirer generates the clarification form, streaming partial JSON as
// inquiry-delta events while it builds.
type Inquirer struct {
	model model.Model
	sink  events.EventSink
}

func NewInquirer(m model.Model, sink events.EventSink) *Inquirer {
	return &Inquirer{model: m, sink: sink}
}

func (i *Inquirer) Inquire(ctx context.Context, meta events.EventMetadata, messages []chat.Message) (*Inquiry, error) {
	parts, err := i.model.Stream(ctx, model.Request{
		System:   inquirePrompt,
		Messages: messages,
		Output: &model.OutputSchema{
			Name:   "inquiry",
			Schema: tools.ReflectSchema(&Inquiry{}),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start inquiry stream")
	}

	var accumulated string
	for part := range parts {
		switch part.Type {
		case model.PartTypeTextDelta:
			accumulated += part.TextDelta
			_ = i.sink.PublishEvent(events.NewInquiryDeltaEvent(meta, accumulated))
		case model.PartTypeError:
			return nil, part.Err
		}
	}

	inquiry := &Inquiry{}
	if err := json.Unmarshal([]byte(accumulated), inquiry); err != nil {
		return nil, errors.Wrap(err, "parse inquiry")
	}
	if inquiry.Question == "" {
		return nil, errors.New("inquiry has no question")
	}
	return inquiry, nil
}

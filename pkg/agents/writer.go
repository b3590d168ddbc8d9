package agents

import (
	"context"

	"github.com/pkg/errors"

	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/events"
	"github.com/kaledar/morphic/pkg/model"
)

// Writer produces the answer from already collected search data when the
// research loop ended with tool output but no text. It runs on the sub-model.
type Writer struct {
	model model.Model
	sink  events.EventSink
}

func NewWriter(m model.Model, sink events.EventSink) *Writer {
	return &Writer{model: m, sink: sink}
}

// Write streams an answer over the transformed window. Tool messages must
// already be re-roled so the backend sees a plain conversation.
func (w *Writer) Write(ctx context.Context, meta events.EventMetadata, messages []chat.Message) (string, error) {
	parts, err := w.model.Stream(ctx, model.Request{
		System:   writerPrompt,
		Messages: chat.TransformToolMessages(messages),
	})
	if err != nil {
		return "", errors.Wrap(err, "start writer stream")
	}

	var text string
	for part := range parts {
		switch part.Type {
		case model.PartTypeTextDelta:
			text += part.TextDelta
			_ = w.sink.PublishEvent(events.NewPartialEvent(meta, part.TextDelta, text, true))
		case model.PartTypeError:
			return "", part.Err
		}
	}
	if text == "" {
		return "", errors.New("writer produced no text")
	}
	return text, nil
}

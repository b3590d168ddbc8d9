package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart opens a turn, EventTypeFinal closes it with the full
	// answer text.
	EventTypeStart   EventType = "start"
	EventTypeFinal   EventType = "final"
	EventTypePartial EventType = "partial"

	// Model requested a tool call / a tool finished executing.
	EventTypeToolCall   EventType = "tool-call"
	EventTypeToolResult EventType = "tool-result"

	// Incremental structured outputs for the clarification form and the
	// related-query list.
	EventTypeInquiryDelta EventType = "inquiry-delta"
	EventTypeRelatedDelta EventType = "related-delta"

	// Video results attached below the answer.
	EventTypeVideoResults EventType = "video-results"

	EventTypeError EventType = "error"
)

// EventMetadata correlates an event with the conversation and turn that
// produced it.
type EventMetadata struct {
	ID     uuid.UUID `json:"event_id"`
	ChatID string    `json:"chat_id,omitempty"`
	TurnID string    `json:"turn_id,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", em.ID.String())
	if em.ChatID != "" {
		e.Str("chat_id", em.ChatID)
	}
	if em.TurnID != "" {
		e.Str("turn_id", em.TurnID)
	}
}

// Event is the unit published to sinks; the UI boundary subscribes to these.
type Event interface {
	Type() EventType
	Metadata() EventMetadata
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`
}

func (e *EventImpl) Type() EventType         { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata { return e.Metadata_ }

var _ Event = &EventImpl{}

type EventStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStart {
	return &EventStart{EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata}}
}

// EventPartial carries a streamed text delta plus the accumulated completion
// so far. Collapsed marks text that the UI should fold behind the tool-result
// detail section.
type EventPartial struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
	Collapsed  bool   `json:"collapsed,omitempty"`
}

func NewPartialEvent(metadata EventMetadata, delta, completion string, collapsed bool) *EventPartial {
	return &EventPartial{
		EventImpl:  EventImpl{Type_: EventTypePartial, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
		Collapsed:  collapsed,
	}
}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata}, Text: text}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

type EventToolCall struct {
	EventImpl
	ToolCall ToolCall `json:"tool_call"`
}

func NewToolCallEvent(metadata EventMetadata, toolCall ToolCall) *EventToolCall {
	return &EventToolCall{
		EventImpl: EventImpl{Type_: EventTypeToolCall, Metadata_: metadata},
		ToolCall:  toolCall,
	}
}

type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Result  string `json:"result"`
	Errored bool   `json:"errored,omitempty"`
}

type EventToolResult struct {
	EventImpl
	ToolResult ToolResult `json:"tool_result"`
}

func NewToolResultEvent(metadata EventMetadata, toolResult ToolResult) *EventToolResult {
	return &EventToolResult{
		EventImpl:  EventImpl{Type_: EventTypeToolResult, Metadata_: metadata},
		ToolResult: toolResult,
	}
}

// EventInquiryDelta streams the accumulating clarification form JSON while it
// is generated.
type EventInquiryDelta struct {
	EventImpl
	Partial string `json:"partial"`
}

func NewInquiryDeltaEvent(metadata EventMetadata, partial string) *EventInquiryDelta {
	return &EventInquiryDelta{
		EventImpl: EventImpl{Type_: EventTypeInquiryDelta, Metadata_: metadata},
		Partial:   partial,
	}
}

type EventRelatedDelta struct {
	EventImpl
	Partial string `json:"partial"`
}

func NewRelatedDeltaEvent(metadata EventMetadata, partial string) *EventRelatedDelta {
	return &EventRelatedDelta{
		EventImpl: EventImpl{Type_: EventTypeRelatedDelta, Metadata_: metadata},
		Partial:   partial,
	}
}

type EventVideoResults struct {
	EventImpl
	Query   string          `json:"query"`
	Results json.RawMessage `json:"results"`
}

func NewVideoResultsEvent(metadata EventMetadata, query string, results json.RawMessage) *EventVideoResults {
	return &EventVideoResults{
		EventImpl: EventImpl{Type_: EventTypeVideoResults, Metadata_: metadata},
		Query:     query,
		Results:   results,
	}
}

// NewEventFromJson decodes a serialized event back into its concrete type,
// used by router handlers on the subscribing side.
func NewEventFromJson(b []byte) (Event, error) {
	var head EventImpl
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, errors.Wrap(err, "decode event head")
	}

	decode := func(target Event) (Event, error) {
		if err := json.Unmarshal(b, target); err != nil {
			return nil, errors.Wrapf(err, "decode %s event", head.Type_)
		}
		return target, nil
	}

	switch head.Type_ {
	case EventTypeStart:
		return decode(&EventStart{})
	case EventTypePartial:
		return decode(&EventPartial{})
	case EventTypeFinal:
		return decode(&EventFinal{})
	case EventTypeError:
		return decode(&EventError{})
	case EventTypeToolCall:
		return decode(&EventToolCall{})
	case EventTypeToolResult:
		return decode(&EventToolResult{})
	case EventTypeInquiryDelta:
		return decode(&EventInquiryDelta{})
	case EventTypeRelatedDelta:
		return decode(&EventRelatedDelta{})
	case EventTypeVideoResults:
		return decode(&EventVideoResults{})
	default:
		return nil, errors.Errorf("unknown event type %q", head.Type_)
	}
}

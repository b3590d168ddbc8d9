package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/events"
	"github.com/kaledar/morphic/pkg/model"
	"github.com/kaledar/morphic/pkg/tools"
)

// fakeModel replays scripted responses and streams, recording the requests
// it received.
type fakeModel struct {
	responses []*model.Response
	streams   [][]model.StreamPart
	err       error

	requests []model.Request
}

func (f *fakeModel) Generate(_ context.Context, req model.Request) (*model.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeModel) Stream(_ context.Context, req model.Request) (<-chan model.StreamPart, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	parts := f.streams[0]
	f.streams = f.streams[1:]

	out := make(chan model.StreamPart, len(parts))
	for _, p := range parts {
		out <- p
	}
	close(out)
	return out, nil
}

func (f *fakeModel) Provider() string { return "fake" }

var _ model.Model = (*fakeModel)(nil)

func textStream(words ...string) []model.StreamPart {
	parts := make([]model.StreamPart, 0, len(words)+1)
	for _, w := range words {
		parts = append(parts, model.StreamPart{Type: model.PartTypeTextDelta, TextDelta: w})
	}
	return append(parts, model.StreamPart{Type: model.PartTypeFinish, FinishReason: model.FinishReasonStop})
}

func userMessages(inputs ...string) []chat.Message {
	msgs := make([]chat.Message, 0, len(inputs))
	for _, in := range inputs {
		msgs = append(msgs, chat.NewMessage(chat.RoleUser, in, chat.TypeInput))
	}
	return msgs
}

func TestTaskManagerDecide(t *testing.T) {
	m := &fakeModel{responses: []*model.Response{
		{Text: `{"next":"inquire"}`, FinishReason: model.FinishReasonStop},
	}}
	tm := NewTaskManager(m, nil)

	action := tm.Decide(context.Background(), userMessages("what about it"))
	require.NotNil(t, action)
	assert.Equal(t, NextInquire, action.Next)

	require.Len(t, m.requests, 1)
	require.NotNil(t, m.requests[0].Output)
	assert.Equal(t, "next_action", m.requests[0].Output.Name)
}

func TestTaskManagerFailsOpen(t *testing.T) {
	cases := []struct {
		name string
		m    *fakeModel
	}{
		{"model error", &fakeModel{err: errors.New("backend down")}},
		{"malformed json", &fakeModel{responses: []*model.Response{{Text: "not json"}}}},
		{"unknown decision", &fakeModel{responses: []*model.Response{{Text: `{"next":"maybe"}`}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tm := NewTaskManager(tc.m, nil)
			assert.Nil(t, tm.Decide(context.Background(), userMessages("q")))
		})
	}
}

func TestInquirerStreamsDeltas(t *testing.T) {
	final := `{"question":"Which aspect?","options":[{"value":"price","label":"Price"}],"allows_input":true,"input_label":"Other","input_placeholder":"Type here"}`
	m := &fakeModel{streams: [][]model.StreamPart{textStream(final[:20], final[20:])}}
	sink := events.NewCollectSink()

	inquirer := NewInquirer(m, sink)
	inquiry, err := inquirer.Inquire(context.Background(), events.EventMetadata{}, userMessages("tell me about go"))
	require.NoError(t, err)

	assert.Equal(t, "Which aspect?", inquiry.Question)
	require.Len(t, inquiry.Options, 1)
	assert.True(t, inquiry.AllowsInput)

	published := sink.Events()
	require.Len(t, published, 2)
	for _, ev := range published {
		assert.Equal(t, events.EventTypeInquiryDelta, ev.Type())
	}
	assert.Equal(t, final, published[1].(*events.EventInquiryDelta).Partial)
}

func TestSuggestorWindows(t *testing.T) {
	msgs := []chat.Message{
		chat.NewMessage(chat.RoleUser, "first question", chat.TypeInput),
		chat.NewMessage(chat.RoleAssistant, "the answer", chat.TypeAnswer),
	}

	related, err := json.Marshal(Related{Items: []RelatedQuery{
		{Query: "a"}, {Query: "b"}, {Query: "c"}, {Query: "d"},
	}})
	require.NoError(t, err)

	t.Run("assistant mode uses first user message", func(t *testing.T) {
		m := &fakeModel{streams: [][]model.StreamPart{textStream(string(related))}}
		s := NewSuggestor(m, events.NullSink{}, true)

		out, err := s.Suggest(context.Background(), events.EventMetadata{}, msgs)
		require.NoError(t, err)
		assert.Len(t, out.Items, maxRelatedQueries)

		require.Len(t, m.requests[0].Messages, 1)
		assert.Equal(t, "first question", m.requests[0].Messages[0].Content)
		assert.Equal(t, chat.RoleUser, m.requests[0].Messages[0].Role)
	})

	t.Run("default mode re-roles last message", func(t *testing.T) {
		m := &fakeModel{streams: [][]model.StreamPart{textStream(string(related))}}
		s := NewSuggestor(m, events.NullSink{}, false)

		_, err := s.Suggest(context.Background(), events.EventMetadata{}, msgs)
		require.NoError(t, err)

		require.Len(t, m.requests[0].Messages, 1)
		assert.Equal(t, "the answer", m.requests[0].Messages[0].Content)
		assert.Equal(t, chat.RoleUser, m.requests[0].Messages[0].Role)
	})
}

func searchRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Definition{
		Name:        "search",
		Description: "web search",
		Execute: func(context.Context, json.RawMessage) (interface{}, error) {
			return map[string]interface{}{"results": []string{"r1"}}, nil
		},
	}))
	return r
}

func TestResearcherToolRoundThenAnswer(t *testing.T) {
	m := &fakeModel{streams: [][]model.StreamPart{
		{
			{Type: model.PartTypeToolCall, ToolCallID: "call_1", ToolName: "search",
				Input: json.RawMessage(`{"query":"go"}`)},
			{Type: model.PartTypeFinish, FinishReason: model.FinishReasonOther},
		},
		textStream("go ", "is ", "great"),
	}}
	sink := events.NewCollectSink()
	r := NewResearcher(m, searchRegistry(t), sink, true)

	outcome := r.Run(context.Background(), events.EventMetadata{}, userMessages("search go"))
	require.False(t, outcome.Errored)
	assert.True(t, outcome.Answered())
	assert.Equal(t, "go is great", outcome.Text)
	require.Len(t, outcome.ToolMessages, 1)
	assert.Equal(t, chat.RoleTool, outcome.ToolMessages[0].Role)

	// first round forces a tool, the resume round does not
	require.Len(t, m.requests, 2)
	assert.True(t, m.requests[0].RequireTool)
	assert.False(t, m.requests[1].RequireTool)
	require.NotNil(t, m.requests[1].ToolResult)
	assert.Equal(t, "call_1", m.requests[1].ToolResult.CallID)
	assert.JSONEq(t, `{"query":"go"}`, string(m.requests[1].ToolResult.Args))

	var sawToolCall, sawToolResult bool
	for _, ev := range sink.Events() {
		switch ev.Type() {
		case events.EventTypeToolCall:
			sawToolCall = true
		case events.EventTypeToolResult:
			sawToolResult = true
		case events.EventTypePartial:
			// answer text after a tool result is collapsed
			assert.True(t, ev.(*events.EventPartial).Collapsed)
		}
	}
	assert.True(t, sawToolCall)
	assert.True(t, sawToolResult)
}

func TestResearcherErrorPartStopsLoop(t *testing.T) {
	m := &fakeModel{streams: [][]model.StreamPart{
		{
			{Type: model.PartTypeTextDelta, TextDelta: "partial "},
			{Type: model.PartTypeError, Err: errors.New("run failed")},
		},
	}}
	r := NewResearcher(m, searchRegistry(t), events.NullSink{}, false)

	outcome := r.Run(context.Background(), events.EventMetadata{}, userMessages("q"))
	assert.True(t, outcome.Errored)
	assert.False(t, outcome.Answered())
	require.Error(t, outcome.Err)
}

func TestResearcherRecordsErroredToolMessages(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Definition{
		Name: "search",
		Execute: func(context.Context, json.RawMessage) (interface{}, error) {
			return nil, errors.New("provider down")
		},
	}))

	m := &fakeModel{streams: [][]model.StreamPart{
		{
			{Type: model.PartTypeToolCall, ToolCallID: "call_1", ToolName: "search",
				Input: json.RawMessage(`{}`)},
			{Type: model.PartTypeFinish, FinishReason: model.FinishReasonOther},
		},
		textStream("degraded answer"),
	}}
	r := NewResearcher(m, registry, events.NullSink{}, true)

	outcome := r.Run(context.Background(), events.EventMetadata{}, userMessages("q"))
	require.False(t, outcome.Errored)
	require.Len(t, outcome.ToolMessages, 1)

	payload, err := chat.DecodeToolPayload(outcome.ToolMessages[0].Content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"provider down"}`, string(payload.Result))
}

func TestWriterFallback(t *testing.T) {
	m := &fakeModel{streams: [][]model.StreamPart{textStream("written ", "answer")}}
	sink := events.NewCollectSink()
	w := NewWriter(m, sink)

	toolMsg, err := chat.NewToolMessage("search", "call_1", json.RawMessage(`{"results":[]}`))
	require.NoError(t, err)
	msgs := append(userMessages("q"), toolMsg)

	text, err := w.Write(context.Background(), events.EventMetadata{}, msgs)
	require.NoError(t, err)
	assert.Equal(t, "written answer", text)

	// tool messages are re-roled before they reach the backend
	for _, msg := range m.requests[0].Messages {
		assert.NotEqual(t, chat.RoleTool, msg.Role)
	}
}

package assistant

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/model"
)

// fakeClient scripts the remote side of the thread/run protocol. statuses is
// consumed one entry per status observation (create/submit result first, then
// one per RetrieveRun).
type fakeClient struct {
	statuses []openai.Run

	createdMessages []openai.MessageRequest
	createdRuns     []openai.RunRequest
	submitted       []openai.SubmitToolOutputsRequest
	retrieves       int

	assistantText string
}

func (f *fakeClient) next() openai.Run {
	run := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return run
}

func (f *fakeClient) CreateThread(context.Context, openai.ThreadRequest) (openai.Thread, error) {
	return openai.Thread{ID: "thread_1"}, nil
}

func (f *fakeClient) CreateMessage(_ context.Context, _ string, req openai.MessageRequest) (openai.Message, error) {
	f.createdMessages = append(f.createdMessages, req)
	return openai.Message{}, nil
}

func (f *fakeClient) CreateRun(_ context.Context, _ string, req openai.RunRequest) (openai.Run, error) {
	f.createdRuns = append(f.createdRuns, req)
	return f.next(), nil
}

func (f *fakeClient) RetrieveRun(context.Context, string, string) (openai.Run, error) {
	f.retrieves++
	return f.next(), nil
}

func (f *fakeClient) SubmitToolOutputs(_ context.Context, _ string, _ string, req openai.SubmitToolOutputsRequest) (openai.Run, error) {
	f.submitted = append(f.submitted, req)
	return f.next(), nil
}

func (f *fakeClient) ListMessage(context.Context, string, *int, *string, *string, *string, *string) (openai.MessagesList, error) {
	return openai.MessagesList{Messages: []openai.Message{
		{
			Role: openai.ChatMessageRoleAssistant,
			Content: []openai.MessageContent{
				{Type: "text", Text: &openai.MessageText{Value: f.assistantText}},
			},
		},
	}}, nil
}

func requiresActionRun(id string, calls ...openai.ToolCall) openai.Run {
	return openai.Run{
		ID:     id,
		Status: openai.RunStatusRequiresAction,
		RequiredAction: &openai.RunRequiredAction{
			SubmitToolOutputs: &openai.SubmitToolOutputs{ToolCalls: calls},
		},
	}
}

func TestGenerateCompletedRun(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			{ID: "run_1", Status: openai.RunStatusQueued},
			{ID: "run_1", Status: openai.RunStatusInProgress},
			{ID: "run_1", Status: openai.RunStatusCompleted},
		},
		assistantText: "the answer",
	}
	m := New(client, "asst_1", WithPollInterval(time.Millisecond))

	resp, err := m.Generate(context.Background(), model.Request{
		System:   "you are a researcher",
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "what is go", chat.TypeInput)},
	})
	require.NoError(t, err)

	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, model.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, model.Usage{}, resp.Usage)
	assert.Equal(t, 2, client.retrieves)

	// system prompt and message both land as user role
	require.Len(t, client.createdMessages, 2)
	for _, msg := range client.createdMessages {
		assert.Equal(t, openai.ChatMessageRoleUser, msg.Role)
	}
}

func TestGenerateRequiresActionThenResume(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			requiresActionRun("run_1", openai.ToolCall{
				ID:       "call_1",
				Function: openai.FunctionCall{Name: "search", Arguments: `{"query":"go"}`},
			}),
			{ID: "run_1", Status: openai.RunStatusCompleted},
		},
		assistantText: "found it",
	}
	m := New(client, "asst_1", WithPollInterval(time.Millisecond))

	resp, err := m.Generate(context.Background(), model.Request{
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "search go", chat.TypeInput)},
		Tools:    []model.ToolDef{{Name: "search"}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search", resp.ToolCalls[0].Name)
	assert.Equal(t, model.FinishReasonOther, resp.FinishReason)

	require.Len(t, client.createdRuns, 1)
	assert.Equal(t, "required", client.createdRuns[0].ToolChoice)

	// second call resumes the pending run instead of starting a new one
	resp, err = m.Generate(context.Background(), model.Request{
		ToolResult: &model.ToolResult{
			CallID: "call_1",
			Name:   "search",
			Result: json.RawMessage(`{"results":[]}`),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "found it", resp.Text)
	assert.Equal(t, model.FinishReasonStop, resp.FinishReason)

	require.Len(t, client.submitted, 1)
	require.Len(t, client.submitted[0].ToolOutputs, 1)
	assert.Equal(t, "call_1", client.submitted[0].ToolOutputs[0].ToolCallID)
	assert.Len(t, client.createdRuns, 1, "resume must not create a second run")
}

func TestGenerateRunFailed(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			{
				ID:        "run_1",
				Status:    openai.RunStatusFailed,
				LastError: &openai.RunLastError{Message: "rate limited"},
			},
		},
	}
	m := New(client, "asst_1", WithPollInterval(time.Millisecond))

	_, err := m.Generate(context.Background(), model.Request{
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "q", chat.TypeInput)},
	})
	require.ErrorIs(t, err, ErrRunFailed)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerateRunTimeout(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			{ID: "run_1", Status: openai.RunStatusInProgress},
		},
	}
	m := New(client, "asst_1",
		WithPollInterval(time.Millisecond),
		WithRunTimeout(5*time.Millisecond))

	_, err := m.Generate(context.Background(), model.Request{
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "q", chat.TypeInput)},
	})
	require.ErrorIs(t, err, ErrRunTimeout)
}

func TestGenerateObservesCancellation(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			{ID: "run_1", Status: openai.RunStatusInProgress},
		},
	}
	m := New(client, "asst_1", WithPollInterval(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, model.Request{
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "q", chat.TypeInput)},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreamToolCallShape(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			requiresActionRun("run_1", openai.ToolCall{
				ID:       "call_1",
				Function: openai.FunctionCall{Name: "search", Arguments: `{"query":"go"}`},
			}),
		},
	}
	m := New(client, "asst_1", WithPollInterval(time.Millisecond))

	parts, err := m.Stream(context.Background(), model.Request{
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "search go", chat.TypeInput)},
		Tools:    []model.ToolDef{{Name: "search"}},
	})
	require.NoError(t, err)

	var got []model.StreamPart
	for part := range parts {
		got = append(got, part)
	}

	require.Len(t, got, 3)
	assert.Equal(t, model.PartTypeToolCallDelta, got[0].Type)
	assert.Equal(t, model.PartTypeToolCall, got[1].Type)
	assert.Equal(t, "call_1", got[1].ToolCallID)
	assert.Equal(t, model.PartTypeFinish, got[2].Type)
	assert.Equal(t, model.FinishReasonOther, got[2].FinishReason)

	for _, part := range got {
		assert.NotEqual(t, model.PartTypeTextDelta, part.Type,
			"tool-call turns must not emit text deltas")
	}
}

func TestStreamSimulatedTextDeltas(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			{ID: "run_1", Status: openai.RunStatusCompleted},
		},
		assistantText: "go is a language",
	}
	m := New(client, "asst_1", WithPollInterval(time.Millisecond))

	parts, err := m.Stream(context.Background(), model.Request{
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "what is go", chat.TypeInput)},
	})
	require.NoError(t, err)

	var text string
	var deltas int
	var finish model.FinishReason
	for part := range parts {
		switch part.Type {
		case model.PartTypeTextDelta:
			assert.NotEmpty(t, part.TextDelta)
			text += part.TextDelta
			deltas++
		case model.PartTypeFinish:
			finish = part.FinishReason
		}
	}

	assert.Equal(t, "go is a language", text)
	assert.Equal(t, 4, deltas)
	assert.Equal(t, model.FinishReasonStop, finish)
}

func TestStreamEmptyCompletionEmitsNoTextDeltas(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			{ID: "run_1", Status: openai.RunStatusCompleted},
		},
		assistantText: "",
	}
	m := New(client, "asst_1", WithPollInterval(time.Millisecond))

	parts, err := m.Stream(context.Background(), model.Request{
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "what is go", chat.TypeInput)},
	})
	require.NoError(t, err)

	var got []model.StreamPart
	for part := range parts {
		got = append(got, part)
	}

	require.Len(t, got, 1)
	assert.Equal(t, model.PartTypeFinish, got[0].Type)
	assert.Equal(t, model.FinishReasonStop, got[0].FinishReason)
}

func TestGenerateIgnoresOutputSchema(t *testing.T) {
	client := &fakeClient{
		statuses: []openai.Run{
			{ID: "run_1", Status: openai.RunStatusCompleted},
		},
		assistantText: `{"next_action":"proceed"}`,
	}
	m := New(client, "asst_1", WithPollInterval(time.Millisecond))

	resp, err := m.Generate(context.Background(), model.Request{
		Messages: []chat.Message{chat.NewMessage(chat.RoleUser, "decide", chat.TypeInput)},
		Output:   &model.OutputSchema{Name: "next_action"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"next_action":"proceed"}`, resp.Text)

	// the run request carries no response format for the schema to ride on
	require.Len(t, client.createdRuns, 1)
}

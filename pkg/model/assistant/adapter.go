package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/kaledar/morphic/pkg/model"
)

var (
	// ErrRunFailed reports a terminal non-success run status from the remote
	// protocol.
	ErrRunFailed = errors.New("assistant run failed")
	// ErrRunTimeout reports that a run did not reach a terminal status within
	// the configured deadline.
	ErrRunTimeout = errors.New("assistant run timed out")
)

// Client is the slice of the assistants API the adapter needs. Satisfied by
// *openai.Client.
type Client interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID string, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

var _ Client = (*openai.Client)(nil)

// pendingRun remembers a run that stopped on requires_action so the next
// invocation can submit tool outputs to it.
type pendingRun struct {
	runID string
}

// Model adapts the stateful thread/run/poll protocol to the uniform model
// contract. One instance owns one thread, so use one instance per
// conversation. All calls on an instance are serialized; runs never overlap
// on the thread.
type Model struct {
	client       Client
	assistantID  string
	pollInterval time.Duration
	runTimeout   time.Duration

	mu       sync.Mutex
	threadID string
	pending  *pendingRun
}

type Option func(*Model)

func WithPollInterval(d time.Duration) Option {
	return func(m *Model) {
		m.pollInterval = d
	}
}

func WithRunTimeout(d time.Duration) Option {
	return func(m *Model) {
		m.runTimeout = d
	}
}

func New(client Client, assistantID string, options ...Option) *Model {
	m := &Model{
		client:       client,
		assistantID:  assistantID,
		pollInterval: time.Second,
		runTimeout:   2 * time.Minute,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

func (m *Model) Provider() string {
	return "openai-assistant"
}

func (m *Model) ensureThread(ctx context.Context) error {
	if m.threadID != "" {
		return nil
	}
	thread, err := m.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return errors.Wrap(err, "create thread")
	}
	m.threadID = thread.ID
	log.Debug().Str("thread_id", m.threadID).Msg("created assistant thread")
	return nil
}

// appendMessages adds the request messages to the thread. The remote protocol
// has no system role, so the system prompt and every message go in as user.
func (m *Model) appendMessages(ctx context.Context, req model.Request) error {
	contents := make([]string, 0, len(req.Messages)+1)
	if req.System != "" {
		contents = append(contents, req.System)
	}
	for _, msg := range req.Messages {
		if msg.Content == "" {
			continue
		}
		contents = append(contents, msg.Content)
	}
	for _, content := range contents {
		_, err := m.client.CreateMessage(ctx, m.threadID, openai.MessageRequest{
			Role:    openai.ChatMessageRoleUser,
			Content: content,
		})
		if err != nil {
			return errors.Wrap(err, "append thread message")
		}
	}
	return nil
}

func runTools(defs []model.ToolDef) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

// startRun either resumes the pending run by submitting the tool output or
// appends the messages and creates a fresh run.
func (m *Model) startRun(ctx context.Context, req model.Request) (openai.Run, error) {
	if req.ToolResult != nil && m.pending != nil {
		runID := m.pending.runID
		m.pending = nil
		log.Debug().Str("run_id", runID).Str("tool", req.ToolResult.Name).
			Msg("submitting tool output")
		run, err := m.client.SubmitToolOutputs(ctx, m.threadID, runID, openai.SubmitToolOutputsRequest{
			ToolOutputs: []openai.ToolOutput{
				{
					ToolCallID: req.ToolResult.CallID,
					Output:     string(req.ToolResult.Result),
				},
			},
		})
		if err != nil {
			return openai.Run{}, errors.Wrap(err, "submit tool outputs")
		}
		return run, nil
	}

	if err := m.appendMessages(ctx, req); err != nil {
		return openai.Run{}, err
	}

	runReq := openai.RunRequest{
		AssistantID: m.assistantID,
		Tools:       runTools(req.Tools),
	}
	if len(req.Tools) > 0 {
		runReq.ToolChoice = "required"
	}
	run, err := m.client.CreateRun(ctx, m.threadID, runReq)
	if err != nil {
		return openai.Run{}, errors.Wrap(err, "create run")
	}
	log.Debug().Str("run_id", run.ID).Str("thread_id", m.threadID).Msg("created run")
	return run, nil
}

// pollRun drives the run to a terminal status. Cancellation is observed
// before every poll; the overall deadline surfaces ErrRunTimeout.
func (m *Model) pollRun(ctx context.Context, run openai.Run) (openai.Run, error) {
	deadline := time.Now().Add(m.runTimeout)
	for {
		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
			// keep polling
		case openai.RunStatusRequiresAction, openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusFailed, openai.RunStatusExpired,
			openai.RunStatusCancelled, openai.RunStatusIncomplete:
			msg := string(run.Status)
			if run.LastError != nil {
				msg = run.LastError.Message
			}
			return run, errors.Wrapf(ErrRunFailed, "status %s: %s", run.Status, msg)
		default:
			return run, errors.Wrapf(ErrRunFailed, "unexpected status %s", run.Status)
		}

		if time.Now().After(deadline) {
			return run, errors.Wrapf(ErrRunTimeout, "run %s still %s after %s",
				run.ID, run.Status, m.runTimeout)
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(m.pollInterval):
		}

		var err error
		run, err = m.client.RetrieveRun(ctx, m.threadID, run.ID)
		if err != nil {
			return run, errors.Wrap(err, "retrieve run")
		}
	}
}

// latestAssistantText returns the text of the newest assistant message on the
// thread.
func (m *Model) latestAssistantText(ctx context.Context) (string, error) {
	limit := 1
	order := "desc"
	list, err := m.client.ListMessage(ctx, m.threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", errors.Wrap(err, "list thread messages")
	}
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var sb strings.Builder
		for _, content := range msg.Content {
			if content.Text != nil {
				sb.WriteString(content.Text.Value)
			}
		}
		return sb.String(), nil
	}
	return "", errors.New("no assistant message on thread")
}

func toolCallsFromRun(run openai.Run) []model.ToolCall {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return nil
	}
	calls := make([]model.ToolCall, 0, len(run.RequiredAction.SubmitToolOutputs.ToolCalls))
	for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		calls = append(calls, model.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: []byte(tc.Function.Arguments),
		})
	}
	return calls
}

// Generate runs one protocol round trip. The protocol reports no token
// counts, so usage is always zero. There is no per-run response format
// either; a requested output schema is not enforced and the caller has to
// rely on the assistant's instructions for the shape of the text.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Output != nil {
		log.Debug().Str("schema", req.Output.Name).
			Msg("output schema not enforceable on assistant runs")
	}

	if err := m.ensureThread(ctx); err != nil {
		return nil, err
	}

	run, err := m.startRun(ctx, req)
	if err != nil {
		return nil, err
	}
	run, err = m.pollRun(ctx, run)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case openai.RunStatusRequiresAction:
		m.pending = &pendingRun{runID: run.ID}
		return &model.Response{
			ToolCalls:    toolCallsFromRun(run),
			FinishReason: model.FinishReasonOther,
		}, nil
	case openai.RunStatusCompleted:
		text, err := m.latestAssistantText(ctx)
		if err != nil {
			return nil, err
		}
		return &model.Response{
			Text:         text,
			FinishReason: model.FinishReasonStop,
		}, nil
	default:
		return nil, errors.Wrapf(ErrRunFailed, "unexpected terminal status %s", run.Status)
	}
}

// Stream runs the same protocol and replays the outcome as stream parts. A
// requires_action run yields one tool-call-delta and one tool-call per
// pending call; a completed run is simulated as whitespace-split text deltas.
func (m *Model) Stream(ctx context.Context, req model.Request) (<-chan model.StreamPart, error) {
	out := make(chan model.StreamPart)

	go func() {
		defer close(out)

		emit := func(part model.StreamPart) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- part:
				return true
			}
		}

		resp, err := m.Generate(ctx, req)
		if err != nil {
			emit(model.StreamPart{Type: model.PartTypeError, Err: err})
			return
		}

		if len(resp.ToolCalls) > 0 {
			for _, tc := range resp.ToolCalls {
				if !emit(model.StreamPart{
					Type:       model.PartTypeToolCallDelta,
					ToolCallID: tc.ID,
					ToolName:   tc.Name,
					InputDelta: string(tc.Input),
				}) {
					return
				}
				if !emit(model.StreamPart{
					Type:       model.PartTypeToolCall,
					ToolCallID: tc.ID,
					ToolName:   tc.Name,
					Input:      tc.Input,
				}) {
					return
				}
			}
			emit(model.StreamPart{Type: model.PartTypeFinish, FinishReason: model.FinishReasonOther})
			return
		}

		words := strings.Split(resp.Text, " ")
		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}
			if delta == "" {
				continue
			}
			if !emit(model.StreamPart{Type: model.PartTypeTextDelta, TextDelta: delta}) {
				return
			}
		}
		emit(model.StreamPart{Type: model.PartTypeFinish, FinishReason: model.FinishReasonStop})
	}()

	return out, nil
}

var _ model.Model = (*Model)(nil)

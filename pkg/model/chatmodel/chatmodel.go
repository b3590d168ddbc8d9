package chatmodel

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/model"
)

// Model runs requests against an OpenAI-compatible chat-completions endpoint,
// hosted or local.
type Model struct {
	client   *openai.Client
	name     string
	provider string
}

// New builds a model for the given endpoint. baseURL may be empty for the
// hosted default; local endpoints pass their own URL and a dummy key.
func New(apiKey, baseURL, modelName, provider string) *Model {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Model{
		client:   openai.NewClientWithConfig(cfg),
		name:     modelName,
		provider: provider,
	}
}

func (m *Model) Provider() string {
	return m.provider
}

// toolCallMerger accumulates streamed tool-call fragments by index until the
// stream ends.
type toolCallMerger struct {
	toolCalls map[int]openai.ToolCall
	order     []int
}

func newToolCallMerger() *toolCallMerger {
	return &toolCallMerger{toolCalls: make(map[int]openai.ToolCall)}
}

func (tcm *toolCallMerger) addToolCalls(toolCalls []openai.ToolCall) {
	for _, call := range toolCalls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		if existing, found := tcm.toolCalls[index]; found {
			existing.Function.Name += call.Function.Name
			existing.Function.Arguments += call.Function.Arguments
			tcm.toolCalls[index] = existing
		} else {
			tcm.toolCalls[index] = call
			tcm.order = append(tcm.order, index)
		}
	}
}

func (tcm *toolCallMerger) getToolCalls() []openai.ToolCall {
	result := make([]openai.ToolCall, 0, len(tcm.order))
	for _, index := range tcm.order {
		result = append(result, tcm.toolCalls[index])
	}
	return result
}

func mapRole(role chat.Role) string {
	switch role {
	case chat.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case chat.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func (m *Model) buildRequest(req model.Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		ccm := openai.ChatCompletionMessage{
			Role:    mapRole(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == chat.RoleTool {
			payload, err := chat.DecodeToolPayload(msg.Content)
			if err != nil {
				ccm.Role = openai.ChatMessageRoleUser
				messages = append(messages, ccm)
				continue
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{
					{
						ID:   payload.CallID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      payload.Name,
							Arguments: "{}",
						},
					},
				},
			})
			ccm.ToolCallID = payload.CallID
			ccm.Content = string(payload.Result)
		}
		messages = append(messages, ccm)
	}
	if req.ToolResult != nil {
		// the protocol rejects a tool-role message without a preceding
		// assistant message carrying the matching tool_calls entry
		args := string(req.ToolResult.Args)
		if args == "" {
			args = "{}"
		}
		messages = append(messages,
			openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{
					{
						ID:   req.ToolResult.CallID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      req.ToolResult.Name,
							Arguments: args,
						},
					},
				},
			},
			openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: req.ToolResult.CallID,
				Content:    string(req.ToolResult.Result),
			})
	}

	ccr := openai.ChatCompletionRequest{
		Model:    m.name,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		ccr.MaxTokens = req.MaxTokens
	}
	for _, def := range req.Tools {
		ccr.Tools = append(ccr.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	if len(ccr.Tools) > 0 {
		if req.RequireTool {
			ccr.ToolChoice = "required"
		} else {
			ccr.ToolChoice = "auto"
		}
	}
	if req.Output != nil {
		ccr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Output.Name,
				Schema: req.Output.Schema,
				Strict: true,
			},
		}
	}
	return ccr
}

func mapFinishReason(fr openai.FinishReason) model.FinishReason {
	switch fr {
	case openai.FinishReasonStop:
		return model.FinishReasonStop
	case openai.FinishReasonToolCalls:
		return model.FinishReasonToolCall
	default:
		return model.FinishReasonOther
	}
}

func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.buildRequest(req))
	if err != nil {
		return nil, errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	out := &model.Response{
		Text:         choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (m *Model) Stream(ctx context.Context, req model.Request) (<-chan model.StreamPart, error) {
	ccr := m.buildRequest(req)
	ccr.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, ccr)
	if err != nil {
		return nil, errors.Wrap(err, "create chat completion stream")
	}

	out := make(chan model.StreamPart)
	go func() {
		defer close(out)
		defer func() {
			if err := stream.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close completion stream")
			}
		}()

		emit := func(part model.StreamPart) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- part:
				return true
			}
		}

		merger := newToolCallMerger()
		finish := model.FinishReasonStop
		usage := model.Usage{}

		for {
			select {
			case <-ctx.Done():
				emit(model.StreamPart{Type: model.PartTypeError, Err: ctx.Err()})
				return
			default:
			}

			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				emit(model.StreamPart{Type: model.PartTypeError, Err: errors.Wrap(err, "stream receive")})
				return
			}

			if resp.Usage != nil {
				usage.PromptTokens = resp.Usage.PromptTokens
				usage.CompletionTokens = resp.Usage.CompletionTokens
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				finish = mapFinishReason(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				if !emit(model.StreamPart{Type: model.PartTypeTextDelta, TextDelta: choice.Delta.Content}) {
					return
				}
			}
			if len(choice.Delta.ToolCalls) > 0 {
				merger.addToolCalls(choice.Delta.ToolCalls)
				for _, tc := range choice.Delta.ToolCalls {
					if !emit(model.StreamPart{
						Type:       model.PartTypeToolCallDelta,
						ToolCallID: tc.ID,
						ToolName:   tc.Function.Name,
						InputDelta: tc.Function.Arguments,
					}) {
						return
					}
				}
			}
		}

		for _, tc := range merger.getToolCalls() {
			if !emit(model.StreamPart{
				Type:       model.PartTypeToolCall,
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
				Input:      json.RawMessage(tc.Function.Arguments),
			}) {
				return
			}
		}
		emit(model.StreamPart{Type: model.PartTypeFinish, FinishReason: finish, Usage: usage})
	}()

	return out, nil
}

var _ model.Model = (*Model)(nil)

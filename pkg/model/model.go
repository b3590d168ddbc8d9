package model

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/kaledar/morphic/pkg/chat"
)

// FinishReason reports why a generation ended.
type FinishReason string

const (
	FinishReasonStop     FinishReason = "stop"
	FinishReasonToolCall FinishReason = "tool-calls"
	FinishReasonError    FinishReason = "error"
	FinishReasonOther    FinishReason = "other"
)

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ToolDef describes a callable tool offered to the model. Parameters is a
// reflected JSON schema for the tool's argument struct.
type ToolDef struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult carries the outcome of an executed tool call back to the model.
// Args holds the arguments of the original call; chat-completions backends
// need them to reconstruct the tool_calls message the protocol requires
// before a tool-role message.
type ToolResult struct {
	CallID string
	Name   string
	Args   json.RawMessage
	Result json.RawMessage
}

// OutputSchema asks the model to produce JSON conforming to a schema.
type OutputSchema struct {
	Name   string
	Schema *jsonschema.Schema
}

// Request is the uniform generation request. All providers accept the same
// shape; providers that cannot honor a field degrade as documented on the
// implementation.
type Request struct {
	System   string
	Messages []chat.Message
	Tools    []ToolDef
	// RequireTool forces the model to call a tool rather than answer in text.
	RequireTool bool
	// ToolResult, when set, resumes a generation that stopped on a tool call.
	ToolResult *ToolResult
	Output     *OutputSchema
	MaxTokens  int
}

type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

type PartType string

const (
	PartTypeTextDelta     PartType = "text-delta"
	PartTypeToolCallDelta PartType = "tool-call-delta"
	PartTypeToolCall      PartType = "tool-call"
	PartTypeFinish        PartType = "finish"
	PartTypeError         PartType = "error"
)

// StreamPart is one element of a streamed generation. Exactly the fields for
// its Type are populated.
type StreamPart struct {
	Type PartType

	// PartTypeTextDelta
	TextDelta string

	// PartTypeToolCallDelta and PartTypeToolCall
	ToolCallID string
	ToolName   string
	// InputDelta accumulates on deltas; Input is complete on PartTypeToolCall.
	InputDelta string
	Input      json.RawMessage

	// PartTypeFinish
	FinishReason FinishReason
	Usage        Usage

	// PartTypeError
	Err error
}

// Model is the uniform contract every provider adapter satisfies.
type Model interface {
	// Generate runs a full request and returns the complete response.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Stream runs the request and emits parts on the returned channel. The
	// channel is closed after a finish or error part.
	Stream(ctx context.Context, req Request) (<-chan StreamPart, error)
	Provider() string
}

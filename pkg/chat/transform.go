package chat

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ToolPayload is the structured content stored in tool-typed messages and
// round-tripped through the message transform when tool history is fed back
// to a model that has no native tool role.
type ToolPayload struct {
	Name   string          `json:"name"`
	CallID string          `json:"call_id,omitempty"`
	Result json.RawMessage `json:"result"`
}

// NewToolMessage encodes a tool execution result as a tool-typed message. The
// message is recorded even when the execution failed; the error surfaces as a
// separate flag on the turn, never by dropping the message.
func NewToolMessage(name, callID string, result json.RawMessage) (Message, error) {
	payload := ToolPayload{Name: name, CallID: callID, Result: result}
	content, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.Wrap(err, "encode tool payload")
	}
	m := NewMessage(RoleTool, string(content), TypeTool)
	m.Name = name
	return m, nil
}

// DecodeToolPayload parses the content of a tool message back into its
// structured payload.
func DecodeToolPayload(content string) (ToolPayload, error) {
	var payload ToolPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return ToolPayload{}, errors.Wrap(err, "decode tool payload")
	}
	return payload, nil
}

// TransformToolMessages rewrites tool-role messages to assistant role so the
// history can be sent to backends without a tool message concept. Content is
// left untouched, which keeps DecodeToolPayload applicable to the transformed
// message.
func TransformToolMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		if m.Role == RoleTool {
			m.Role = RoleAssistant
		}
		out[i] = m
	}
	return out
}

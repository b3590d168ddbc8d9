package chat

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Role identifies the author of a message in the conversation log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageType is the semantic tag attached to a message, describing what
// stage of the turn produced it.
type MessageType string

const (
	TypeInput        MessageType = "input"
	TypeInputRelated MessageType = "input_related"
	TypeInquiry      MessageType = "inquiry"
	TypeAnswer       MessageType = "answer"
	TypeTool         MessageType = "tool"
	TypeRelated      MessageType = "related"
	TypeFollowup     MessageType = "followup"
	// TypeEnd marks the terminal message of a persisted conversation. No
	// message is ever appended after it.
	TypeEnd MessageType = "end"
)

// Message is a single append-only entry in the conversation log. Messages are
// never mutated after creation.
type Message struct {
	ID      string      `json:"id"`
	Role    Role        `json:"role"`
	Content string      `json:"content"`
	Type    MessageType `json:"type,omitempty"`
	// Name carries the tool name for messages of type "tool".
	Name string `json:"name,omitempty"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(role Role, content string, msgType MessageType) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		Type:    msgType,
	}
}

// UserInput is the JSON shape submitted by the UI form for input-typed user
// messages.
type UserInput struct {
	Input           string `json:"input,omitempty"`
	RelatedQuery    string `json:"related_query,omitempty"`
	AdditionalQuery string `json:"additional_query,omitempty"`
	Action          string `json:"action,omitempty"`
}

// Query returns the textual query carried by a user input payload.
func (u UserInput) Query() string {
	if u.Input != "" {
		return u.Input
	}
	if u.RelatedQuery != "" {
		return u.RelatedQuery
	}
	return u.AdditionalQuery
}

// ParseUserInput decodes the content of a user message. Non-JSON content is
// returned as a plain input query.
func ParseUserInput(content string) UserInput {
	var in UserInput
	if err := json.Unmarshal([]byte(content), &in); err != nil {
		return UserInput{Input: content}
	}
	return in
}

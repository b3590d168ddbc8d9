package agents

// NextAction is the task-manager gate decision. It is transient and never
// recorded in the conversation.
type NextAction struct {
	Next string `json:"next" jsonschema:"enum=proceed,enum=inquire,description=Whether to proceed with research or ask the user for clarification"`
}

const (
	NextProceed = "proceed"
	NextInquire = "inquire"
)

type InquiryOption struct {
	Value string `json:"value" jsonschema:"description=Machine readable option value"`
	Label string `json:"label" jsonschema:"description=Option label shown to the user"`
}

// Inquiry is the clarification form presented when the gate decides the
// query is too ambiguous to research directly.
type Inquiry struct {
	Question         string          `json:"question" jsonschema:"description=The clarifying question"`
	Options          []InquiryOption `json:"options" jsonschema:"description=Selectable answer options"`
	AllowsInput      bool            `json:"allows_input,omitempty" jsonschema:"description=Whether free text input is allowed"`
	InputLabel       string          `json:"input_label,omitempty" jsonschema:"description=Label for the free text input"`
	InputPlaceholder string          `json:"input_placeholder,omitempty" jsonschema:"description=Placeholder for the free text input"`
}

type RelatedQuery struct {
	Query string `json:"query" jsonschema:"description=The follow-up query"`
}

// Related holds the follow-up queries proposed after an answer.
type Related struct {
	Items []RelatedQuery `json:"items" jsonschema:"description=Up to three follow-up queries"`
}

// maxRelatedQueries caps the suggestion list.
const maxRelatedQueries = 3

package chat

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrConversationEnded is returned when appending to a conversation that
// already carries an end marker.
var ErrConversationEnded = errors.New("conversation has ended")

// State is the append-only message log of one conversation. A mutex guards
// appends so a state instance can be shared between the orchestrator and
// readers; messages themselves are immutable once appended.
type State struct {
	mu       sync.RWMutex
	chatID   string
	messages []Message
}

// NewState creates an empty conversation state with a fresh chat id.
func NewState() *State {
	return &State{chatID: uuid.NewString()}
}

// NewStateWithID restores a state for an existing chat id, e.g. when resuming
// a persisted conversation.
func NewStateWithID(chatID string, messages []Message) *State {
	s := &State{chatID: chatID}
	s.messages = append(s.messages, messages...)
	return s
}

// ChatID returns the conversation identifier.
func (s *State) ChatID() string {
	return s.chatID
}

// Append adds messages to the log in order. It fails once an end marker is
// present; the end marker itself must be the last message appended.
func (s *State) Append(msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		if n := len(s.messages); n > 0 && s.messages[n-1].Type == TypeEnd {
			return ErrConversationEnded
		}
		s.messages = append(s.messages, m)
	}
	return nil
}

// Messages returns a copy of the full log.
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// HasAnswer reports whether the conversation contains an answer-typed message.
// Conversations are only persisted once this holds.
func (s *State) HasAnswer() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.Type == TypeAnswer {
			return true
		}
	}
	return false
}

// ModelWindow returns the most recent max messages suitable for a model
// request: tool, related, followup and end messages are filtered out first,
// then the tail of length max is taken.
func (s *State) ModelWindow(max int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filtered := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		switch m.Type {
		case TypeTool, TypeRelated, TypeFollowup, TypeEnd:
			continue
		}
		filtered = append(filtered, m)
	}
	if max > 0 && len(filtered) > max {
		filtered = filtered[len(filtered)-max:]
	}
	return filtered
}

// UserQuery joins the queries of all user messages, used to drive the video
// section after an answer.
func (s *State) UserQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parts := []string{}
	for _, m := range s.messages {
		if m.Role != RoleUser {
			continue
		}
		if q := ParseUserInput(m.Content).Query(); q != "" {
			parts = append(parts, q)
		}
	}
	return strings.Join(parts, " ")
}

// Title derives a conversation title from the first user input, truncated to
// 100 runes.
func (s *State) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.Role != RoleUser {
			continue
		}
		q := ParseUserInput(m.Content).Query()
		if q == "" {
			continue
		}
		runes := []rune(q)
		if len(runes) > 100 {
			return string(runes[:100])
		}
		return q
	}
	return "Untitled"
}

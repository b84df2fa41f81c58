package history

import "fmt"

// Role tags who authored a message.
type Role int

const (
	Human Role = iota
	AI
)

func (r Role) String() string {
	switch r {
	case Human:
		return "human"
	case AI:
		return "ai"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole maps the serialized role names back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "human":
		return Human, nil
	case "ai":
		return AI, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// HumanMessage returns a message authored by the user.
func HumanMessage(content string) Message {
	return Message{Role: Human, Content: content}
}

// AIMessage returns a message authored by the model.
func AIMessage(content string) Message {
	return Message{Role: AI, Content: content}
}

// History is an ordered, append-only conversation.
type History struct {
	messages []Message
}

// New creates an empty history.
func New() *History {
	return &History{}
}

// Append adds messages to the end of the conversation.
func (h *History) Append(messages ...Message) {
	h.messages = append(h.messages, messages...)
}

// Messages returns a copy of the conversation in chronological order.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}

package models

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext is the jsonb bag stored on a conversation. Messages is
// the rolling history; any other keys written by other tools are kept in Extra
// and round-trip untouched.
type ConversationContext struct {
	Messages []Message
	Extra    map[string]json.RawMessage
}

func (c ConversationContext) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+1)
	for k, v := range c.Extra {
		out[k] = v
	}
	msgs := c.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	out["messages"] = msgs
	return json.Marshal(out)
}

func (c *ConversationContext) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Messages = nil
	c.Extra = nil
	if msgs, ok := raw["messages"]; ok {
		// A malformed history is dropped rather than failing the whole conversation.
		var parsed []Message
		if err := json.Unmarshal(msgs, &parsed); err == nil {
			c.Messages = parsed
		}
		delete(raw, "messages")
	}
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// Conversation is the rolling dialogue for one (customer, channel) pair.
type Conversation struct {
	ID            string              `json:"id"`
	CustomerID    string              `json:"customer_id"`
	Channel       string              `json:"channel"`
	Context       ConversationContext `json:"context"`
	LastMessageAt time.Time           `json:"last_message_at"`
	CreatedAt     time.Time           `json:"created_at"`
}

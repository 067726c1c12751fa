package model

import "time"

// Conversation is the single ongoing chat: an ordered message list plus
// the model currently answering it. WebSearch records whether the
// server-side web search tool rides along with requests.
type Conversation struct {
	Messages     []Message `json:"messages"`
	CreatedAt    string    `json:"created_at"`
	CurrentModel string    `json:"current_model,omitempty"`
	WebSearch    bool      `json:"web_search_enabled,omitempty"`
}

// NewConversation returns an empty conversation bound to the given model.
func NewConversation(model string) *Conversation {
	return &Conversation{
		CreatedAt:    time.Now().Format(time.RFC3339),
		CurrentModel: model,
	}
}

// Add appends a message.
func (c *Conversation) Add(m Message) {
	c.Messages = append(c.Messages, m)
}

// HasMessages reports whether the conversation is non-empty.
func (c *Conversation) HasMessages() bool {
	return len(c.Messages) > 0
}

// APIMessages returns the messages in wire shape, skipping local system
// notes (model switches) that the API should never see.
func (c *Conversation) APIMessages() []APIMessage {
	out := make([]APIMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == RoleSystem && m.ModelSwitch {
			continue
		}
		out = append(out, APIMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// SwitchModel records a model switch as a system note and updates the
// current model. A no-op when the model is unchanged.
func (c *Conversation) SwitchModel(newModel string) {
	if newModel == c.CurrentModel {
		return
	}
	c.Add(NewModelSwitchMessage(c.CurrentModel, newModel))
	c.CurrentModel = newModel
}

// Package model defines the domain types for conversations and messages.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Content block types understood by the Messages API.
const (
	BlockText     = "text"
	BlockImage    = "image"
	BlockDocument = "document"
)

// CacheControl marks a content block as a prompt-cache boundary.
type CacheControl struct {
	Type string `json:"type"`
	TTL  string `json:"ttl,omitempty"`
}

// BlockSource holds the payload of an image or document block.
type BlockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	FileID    string `json:"file_id,omitempty"`
}

// ContentBlock is one typed element of a structured message body.
type ContentBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	Source       *BlockSource  `json:"source,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// Content is a message body: either a plain string or an ordered list of
// content blocks. The API accepts both shapes, and saved conversations
// must round-trip whichever shape they were written with.
type Content struct {
	Text   string
	Blocks []ContentBlock
}

// TextContent returns plain-string content.
func TextContent(s string) Content {
	return Content{Text: s}
}

// BlocksContent returns structured content.
func BlocksContent(blocks ...ContentBlock) Content {
	return Content{Blocks: blocks}
}

// IsBlocks reports whether the content carries structured blocks.
func (c Content) IsBlocks() bool {
	return c.Blocks != nil
}

// Plain returns a best-effort plain-text rendering of the content,
// used for transcript display.
func (c Content) Plain() string {
	if !c.IsBlocks() {
		return c.Text
	}
	var buf bytes.Buffer
	for _, b := range c.Blocks {
		var part string
		switch b.Type {
		case BlockText:
			part = b.Text
		case BlockImage:
			part = "[image]"
		case BlockDocument:
			part = "[document]"
		default:
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(part)
	}
	return buf.String()
}

// MarshalJSON emits a bare string for plain content and an array for
// structured content.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsBlocks() {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts either a bare string or an array of blocks.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty content")
	}
	switch trimmed[0] {
	case '"':
		c.Blocks = nil
		return json.Unmarshal(trimmed, &c.Text)
	case '[':
		c.Text = ""
		c.Blocks = []ContentBlock{}
		return json.Unmarshal(trimmed, &c.Blocks)
	default:
		return fmt.Errorf("content must be a string or an array, got %s", preview(trimmed))
	}
}

func preview(data []byte) string {
	if len(data) > 24 {
		return string(data[:24]) + "..."
	}
	return string(data)
}

// Message is one entry in a conversation. Timestamp, Model, and
// ModelSwitch are local bookkeeping and never sent to the API.
type Message struct {
	Role        string  `json:"role"`
	Content     Content `json:"content"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Model       string  `json:"model,omitempty"`
	ModelSwitch bool    `json:"model_switch,omitempty"`
}

// APIMessage is the wire shape sent to the Messages API.
type APIMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// NewUserMessage returns a timestamped user message.
func NewUserMessage(content Content) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// NewAssistantMessage returns a timestamped assistant message tagged with
// the model that produced it.
func NewAssistantMessage(text, model string) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   TextContent(text),
		Timestamp: time.Now().Format(time.RFC3339),
		Model:     model,
	}
}

// NewModelSwitchMessage returns the system note recorded when the user
// switches models mid-conversation.
func NewModelSwitchMessage(oldModel, newModel string) Message {
	return Message{
		Role:        RoleSystem,
		Content:     TextContent(fmt.Sprintf("Model switched from %s to %s", oldModel, newModel)),
		Timestamp:   time.Now().Format(time.RFC3339),
		ModelSwitch: true,
	}
}

package anthropic

import (
	"strings"

	"claudechat/internal/model"
)

// MessagesRequest is the Messages API request body. Messages are sent in
// the annotated wire shape, so cache_control markers pass through as-is.
type MessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Tools     []Tool             `json:"tools,omitempty"`
	Messages  []model.APIMessage `json:"messages"`
}

// Tool is a server-side tool definition attached to a request.
type Tool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

// WebSearchMaxUses caps how many searches the model may run while
// composing one reply.
const WebSearchMaxUses = 5

// WebSearchTool returns the server-side web search tool definition.
func WebSearchTool() Tool {
	return Tool{
		Type:    "web_search_20250305",
		Name:    "web_search",
		MaxUses: WebSearchMaxUses,
	}
}

// MessagesResponse is the Messages API response body.
type MessagesResponse struct {
	ID         string       `json:"id"`
	Model      string       `json:"model"`
	StopReason string       `json:"stop_reason"`
	Content    []ReplyBlock `json:"content"`
	Usage      model.Usage  `json:"usage"`
}

// ReplyBlock is one content block of an assistant reply.
type ReplyBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Text concatenates the text blocks of the reply.
func (r *MessagesResponse) Text() string {
	var parts []string
	for _, b := range r.Content {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

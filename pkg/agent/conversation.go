package agent

import "github.com/bashme-ai/bashme/pkg/providers"

// Conversation is one request's transcript. Append-only: past messages are
// never rewritten, so a tool message always answers a call from the most
// recent assistant message. Not safe for concurrent use, which is fine
// because each request owns exactly one.
type Conversation struct {
	messages []providers.Message
}

func NewConversation() *Conversation {
	return &Conversation{}
}

func (c *Conversation) AddSystem(content string) {
	c.messages = append(c.messages, providers.Message{Role: "system", Content: content})
}

func (c *Conversation) AddUser(content string) {
	c.messages = append(c.messages, providers.Message{Role: "user", Content: content})
}

// AddAssistant records the model turn verbatim, tool calls included.
func (c *Conversation) AddAssistant(content string, toolCalls []providers.ToolCall) {
	c.messages = append(c.messages, providers.Message{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AddToolResult answers the assistant tool call identified by toolCallID.
func (c *Conversation) AddToolResult(toolCallID, content string) {
	c.messages = append(c.messages, providers.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: toolCallID,
	})
}

// Messages returns the transcript for the next provider round. Callers
// must treat it as read-only.
func (c *Conversation) Messages() []providers.Message {
	return c.messages
}

func (c *Conversation) Len() int {
	return len(c.messages)
}

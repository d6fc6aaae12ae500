package llm

import "github.com/sashabaranov/go-openai/jsonschema"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model request to run a tool. Arguments is raw JSON.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// Reply is the assistant message returned by Chat.
type Reply struct {
	Message Message
}

// ToolCalls returns the tool calls requested by the model, if any.
func (r *Reply) ToolCalls() []ToolCall {
	if r == nil {
		return nil
	}
	return r.Message.ToolCalls
}

// Content returns the assistant text.
func (r *Reply) Content() string {
	if r == nil {
		return ""
	}
	return r.Message.Content
}

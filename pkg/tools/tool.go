package tools

import "context"

// Tool is one inspection capability offered to the model. Implementations
// are read-only: they observe the system and must never mutate it. Failures
// are reported through the result, not panics.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *ToolResult
}

// ToolResult carries what the model sees. Err keeps the underlying cause
// for logging; ForLLM is the only part that enters the conversation.
type ToolResult struct {
	ForLLM  string
	IsError bool
	Err     error
}

func NewToolResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

func ErrorResult(message string) *ToolResult {
	return &ToolResult{ForLLM: message, IsError: true}
}

func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	return r
}

// Content returns the text to fold into the tool message. Error results
// with no message still produce something the model can react to.
func (r *ToolResult) Content() string {
	if r.ForLLM != "" {
		return r.ForLLM
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

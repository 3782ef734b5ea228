package llm

import "context"

// Tool is a provider-facing tool declaration.
type Tool struct {
	Name        string
	Description string
	Schema      any
}

// Params are model options passed through to the provider untouched.
type Params struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Context is the full input of one reasoning step: the conversation so far,
// the declared tools, and the model params.
type Context struct {
	Messages []map[string]any
	Tools    []Tool
	Params   Params
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is one reasoning step outcome. A non-empty ToolCalls slice is a
// tool request; otherwise Text is the final answer.
type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
	ToolCalls    []ToolCall
}

// ToolCall is a structured request from the model to invoke one tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Requested reports whether the response asks for tool execution.
func (r Response) Requested() bool { return len(r.ToolCalls) > 0 }

// Adapter abstracts a hosted model provider.
type Adapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Stream(ctx context.Context, input Context) (<-chan string, error)
	MapTools(tools []Tool) (providerTools any, err error)
	Name() string
}

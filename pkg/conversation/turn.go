package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the kind of a turn.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
)

// FailureKind classifies a failed tool result so the model can tell a bad
// argument from a broken tool.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureUnknownTool FailureKind = "tool_unknown"
	FailureInvalidArgs FailureKind = "tool_invalid_args"
	FailureExecution   FailureKind = "tool_execution"
	FailureTimeout     FailureKind = "tool_timeout"
)

// Turn is one atomic unit of conversation. CallID links a tool_result to the
// tool_call that produced it. Seq is assigned on append and is monotonic
// within one State.
type Turn struct {
	Seq       int            `json:"seq"`
	Role      Role           `json:"role"`
	Content   string         `json:"content,omitempty"`
	CallID    string         `json:"call_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Failed    bool           `json:"failed,omitempty"`
	Failure   FailureKind    `json:"failure,omitempty"`
	Time      time.Time      `json:"time"`
}

func NewUserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: text, Time: time.Now()}
}

func NewAssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: text, Time: time.Now()}
}

// NewToolCallTurn records the model's request to invoke a tool. A fresh call
// ID is minted when the provider did not supply one.
func NewToolCallTurn(callID, name string, args map[string]any) Turn {
	if callID == "" {
		callID = "call_" + uuid.NewString()
	}
	return Turn{Role: RoleToolCall, CallID: callID, ToolName: name, Arguments: args, Time: time.Now()}
}

func NewToolResultTurn(callID, name, content string) Turn {
	return Turn{Role: RoleToolResult, CallID: callID, ToolName: name, Content: content, Time: time.Now()}
}

func NewFailedToolResultTurn(callID, name, content string, kind FailureKind) Turn {
	return Turn{
		Role:     RoleToolResult,
		CallID:   callID,
		ToolName: name,
		Content:  content,
		Failed:   true,
		Failure:  kind,
		Time:     time.Now(),
	}
}

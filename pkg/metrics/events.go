package metrics

// Well-known event names emitted by the engine.
const (
	EventRunStart      = "run_start"
	EventRunDone       = "run_done"
	EventRunAborted    = "run_aborted"
	EventReasoningDone = "reasoning_done"
	EventToolCall      = "tool_call"
	EventToolResult    = "tool_result"
	EventTurnAppended  = "turn_appended"
	EventRateLimit     = "rate_limit"
	EventBreakerDenied = "breaker_denied"
)

// Well-known tag keys.
const (
	TagRunID     = "run_id"
	TagTraceID   = "trace_id"
	TagToolName  = "tool_name"
	TagProvider  = "provider"
	TagComponent = "component"
)

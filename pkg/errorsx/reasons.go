package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonProviderCall      ReasonCode = "provider_call"
	ReasonProviderRateLimit ReasonCode = "provider_rate_limit"
	ReasonProviderMalformed ReasonCode = "provider_malformed"
	ReasonProviderStream    ReasonCode = "provider_stream"

	ReasonToolUnknown     ReasonCode = "tool_unknown"
	ReasonToolInvalidArgs ReasonCode = "tool_invalid_args"
	ReasonToolExecution   ReasonCode = "tool_execution"
	ReasonToolTimeout     ReasonCode = "tool_timeout"

	ReasonTurnLimit     ReasonCode = "turn_limit"
	ReasonRunCanceled   ReasonCode = "run_canceled"
	ReasonTransportSend ReasonCode = "transport_send"
)

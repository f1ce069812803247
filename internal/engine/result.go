package engine

// Failure codes carried on the terminal result and the error event. These
// are the only error identifiers that cross the transport boundary; raw
// dependency errors stay in the logs.
const (
	CodeInvalidInput   = "invalid_input"
	CodeMaxSteps       = "max_steps_reached"
	CodeTooManyTools   = "too_many_tool_calls"
	CodeLLMUnavailable = "llm_unavailable"
	CodeToolFailed     = "tool_failed"
	CodeCancelled      = "cancelled"
	CodeInternal       = "internal_error"
)

// Result is the terminal outcome of one conversation turn.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
	// Steps is how many model rounds the turn consumed; zero on a cache hit.
	Steps     int  `json:"steps"`
	ToolCalls int  `json:"tool_calls"`
	CacheHit  bool `json:"cache_hit"`
}

func success(content string, steps, toolCalls int) Result {
	return Result{Success: true, Content: content, Steps: steps, ToolCalls: toolCalls}
}

func failure(code, detail string, steps, toolCalls int) Result {
	return Result{Code: code, Detail: detail, Steps: steps, ToolCalls: toolCalls}
}

package generations

// Finish reasons used in the canonical envelope. Other native reasons are upper-cased verbatim.
const (
	FinishStop    = "STOP"
	FinishToolUse = "TOOL_USE"
)

// Response is the canonical envelope. JSON names are a frozen wire contract.
type Response struct {
	Content           string              `json:"content"`
	Metadata          Metadata            `json:"metadata"`
	GroundingMetadata *GroundingMetadata  `json:"groundingMetadata,omitempty"`
	ToolCalls         []ToolCall          `json:"toolCalls,omitempty"`
	CodeExecution     []CodeExecutionPart `json:"codeExecution,omitempty"`
	// Structured holds the parsed value of a JSON-mode call when parsing succeeded.
	Structured any `json:"structured,omitempty"`
}

// Metadata carries the finish reason and usage accounting.
type Metadata struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// Usage is token accounting; missing fields are 0.
type Usage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// GroundingMetadata is passed through from search-grounded responses with the native sub-field names.
type GroundingMetadata struct {
	WebSearchQueries  []any `json:"webSearchQueries"`
	SearchEntryPoint  any   `json:"searchEntryPoint"`
	GroundingChunks   []any `json:"groundingChunks"`
	GroundingSupports []any `json:"groundingSupports"`
}

// ToolCall is one model-initiated tool invocation.
type ToolCall struct {
	Type string `json:"type"`
	Name string `json:"name"`
	ID   string `json:"id"`
	Args any    `json:"args"`
}

// CodeExecutionPart is one executed-code step.
type CodeExecutionPart struct {
	ExecutableCode      *ExecutableCode      `json:"executable_code,omitempty"`
	CodeExecutionResult *CodeExecutionResult `json:"code_execution_result,omitempty"`
	Text                string               `json:"text,omitempty"`
}

// ExecutableCode is code generated by the model.
type ExecutableCode struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// CodeExecutionResult is the outcome of running ExecutableCode.
type CodeExecutionResult struct {
	Outcome string `json:"outcome"`
	Output  string `json:"output"`
}

// NewResponse returns a text response with default metadata.
func NewResponse(content string) *Response {
	return &Response{Content: content, Metadata: Metadata{FinishReason: FinishStop}}
}

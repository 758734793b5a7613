package core

// RunResult is the terminal outcome of a successful run.
type RunResult struct {
	RunID          string   `json:"run_id"`
	ConversationID string   `json:"conversation_id"`
	FinalAnswer    string   `json:"final_answer"`
	ToolsUsed      []string `json:"tools_used"`
	Steps          int      `json:"steps"`
}

// RunError is the terminal outcome of a failed run. It wraps the cause so
// errors.As finds the taxonomy error underneath.
type RunError struct {
	RunID         string
	Steps         int
	PartialAnswer string
	Err           error
}

func (e *RunError) Error() string { return e.Err.Error() }

func (e *RunError) Unwrap() error { return e.Err }

package types

import "time"

// ExecutionState represents the lifecycle state of a command execution.
// Completed, Failed and TimedOut are terminal; there is no path back.
type ExecutionState string

const (
	ExecutionStateDispatched ExecutionState = "dispatched"
	ExecutionStateCompleted  ExecutionState = "completed"
	ExecutionStateFailed     ExecutionState = "failed"
	ExecutionStateTimedOut   ExecutionState = "timed_out"
)

// Terminal reports whether the state permits no further transitions.
func (s ExecutionState) Terminal() bool {
	switch s {
	case ExecutionStateCompleted, ExecutionStateFailed, ExecutionStateTimedOut:
		return true
	}
	return false
}

// CommandEnvelope represents a single command addressed to one agent,
// as delivered over the agent channel
type CommandEnvelope struct {
	CommandID string        `json:"command_id"`
	AgentID   string        `json:"agent_id"`
	Command   string        `json:"command"`
	Timeout   time.Duration `json:"timeout"`
	CreatedAt time.Time     `json:"created_at"`
}

// CommandExecution represents one dispatch of a resolved command to one
// agent. Two agents executing the same batch carry two distinct command IDs.
type CommandExecution struct {
	CommandID  string            `json:"command_id"`
	AgentID    string            `json:"agent_id"`
	Command    string            `json:"command"`
	TemplateID string            `json:"template_id,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Timeout    time.Duration     `json:"timeout"`
	State      ExecutionState    `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Result     *CommandResult    `json:"result,omitempty"`
}

// CommandResult represents the payload an agent reports back after
// executing a command
type CommandResult struct {
	CommandID string        `json:"command_id"`
	AgentID   string        `json:"agent_id"`
	Success   bool          `json:"success"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
}

// DispatchResult represents the immediate per-agent outcome of a dispatch.
// Exactly one of CommandID or Err is set.
type DispatchResult struct {
	AgentID   string `json:"agent_id"`
	CommandID string `json:"command_id,omitempty"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// Poll status values reported to callers. A dispatched execution whose
// deadline has not passed reads as pending.
const (
	PollStatusPending   = "pending"
	PollStatusCompleted = "completed"
	PollStatusFailed    = "failed"
	PollStatusTimedOut  = "timed_out"
)

// ExecutionView represents the caller-facing view of an execution as
// returned by a result poll
type ExecutionView struct {
	AgentID              string   `json:"agent_id"`
	CommandID            string   `json:"command_id"`
	Status               string   `json:"status"`
	Output               string   `json:"output,omitempty"`
	Error                string   `json:"error,omitempty"`
	ExitCode             *int     `json:"exit_code,omitempty"`
	ExecutionTimeSeconds *float64 `json:"execution_time_seconds,omitempty"`
}

package transport

import "fmt"

// Fleet subjects. Agents publish onto the shared fleet.* subjects and each
// agent subscribes to its own command subject.
const (
	SubjectRegister   = "fleet.register"
	SubjectHeartbeat  = "fleet.heartbeat"
	SubjectUnregister = "fleet.unregister"
	SubjectResult     = "fleet.result"
)

// AgentCommandSubject returns the per-agent subject command envelopes are
// delivered on.
func AgentCommandSubject(agentID string) string {
	return fmt.Sprintf("fleet.agent.%s.exec", agentID)
}

// UnregisterRequest represents a graceful disconnect notice from an agent
type UnregisterRequest struct {
	AgentID string `json:"agent_id"`
}

// Ack represents the reply sent for request-style fleet messages
type Ack struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

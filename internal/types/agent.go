package types

import "time"

// AgentInfo represents a managed endpoint agent
type AgentInfo struct {
	ID           string           `json:"id"`
	Hostname     string           `json:"hostname"`
	IPAddress    string           `json:"ip_address"`
	OS           string           `json:"os"`
	Version      string           `json:"version"`
	Tags         []string         `json:"tags,omitempty"`
	Status       AgentStatus      `json:"status"`
	LastSeen     time.Time        `json:"last_seen"`
	RegisteredAt time.Time        `json:"registered_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Metrics      *MetricsSnapshot `json:"metrics,omitempty"`
}

// AgentStatus represents the current lifecycle status of an agent
type AgentStatus string

const (
	AgentStatusPending AgentStatus = "pending"
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
)

// MetricsSnapshot represents the last reported system metrics of an agent.
// It is replaced wholesale on every heartbeat, never merged field by field.
type MetricsSnapshot struct {
	CPUPercent    float64     `json:"cpu_percent"`
	MemoryPercent float64     `json:"memory_percent"`
	Volumes       []DiskUsage `json:"volumes,omitempty"`
	CollectedAt   time.Time   `json:"collected_at"`
}

// DiskUsage represents usage of a single volume
type DiskUsage struct {
	Mount       string  `json:"mount"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// RegisterRequest represents the registration payload sent by an agent
// when its channel opens
type RegisterRequest struct {
	AgentID   string   `json:"agent_id" validate:"required"`
	Hostname  string   `json:"hostname" validate:"required"`
	IPAddress string   `json:"ip_address"`
	OS        string   `json:"os"`
	Version   string   `json:"version"`
	Tags      []string `json:"tags,omitempty"`
}

// Heartbeat represents a periodic agent report carrying a metrics snapshot
type Heartbeat struct {
	AgentID   string           `json:"agent_id"`
	Metrics   *MetricsSnapshot `json:"metrics,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

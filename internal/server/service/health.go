package service

import (
	"context"

	"fleetcmd/internal/types"
)

// Health reports component status for the health endpoint.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Agents   struct {
		Online  int `json:"online"`
		Offline int `json:"offline"`
	} `json:"agents"`
}

// CheckHealth pings the configured dependencies and counts the fleet.
func (s *Service) CheckHealth(ctx context.Context) Health {
	h := Health{Status: "ok"}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			h.Status = "degraded"
			h.Database = err.Error()
		} else {
			h.Database = "ok"
		}
	}

	h.Agents.Online = len(s.registry.ListByStatus(types.AgentStatusOnline))
	h.Agents.Offline = len(s.registry.ListByStatus(types.AgentStatusOffline))
	return h
}

package v1

import (
	"errors"

	"github.com/gin-gonic/gin"

	"fleetcmd/internal/server/api/response"
	"fleetcmd/internal/types"
)

// getAgents returns all known agents, optionally filtered by status
func (api *API) getAgents(c *gin.Context) {
	resp := response.New(c, api.logger)

	status := types.AgentStatus(c.Query("status"))
	switch status {
	case "", types.AgentStatusPending, types.AgentStatusOnline, types.AgentStatusOffline:
	default:
		resp.BadRequest(errors.New("invalid status filter"))
		return
	}

	agents := api.service.ListAgents(status)
	resp.Success(gin.H{"agents": agents, "count": len(agents)})
}

// getAgent returns one agent record
func (api *API) getAgent(c *gin.Context) {
	resp := response.New(c, api.logger)

	agent, err := api.service.GetAgent(c.Param("id"))
	if err != nil {
		if errors.Is(err, types.ErrAgentNotFound) {
			resp.NotFound(err)
			return
		}
		resp.InternalError(err)
		return
	}

	resp.Success(agent)
}

package v1

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleetcmd/internal/server/api/response"
	"fleetcmd/internal/server/service"
	"fleetcmd/internal/types"
)

// executeRequest represents the execute endpoint payload. Timeout is
// expressed in seconds on the wire.
type executeRequest struct {
	AgentIDs   []string          `json:"agent_ids" binding:"required,min=1"`
	Command    string            `json:"command"`
	TemplateID string            `json:"template_id"`
	Params     map[string]string `json:"params"`
	Timeout    int               `json:"timeout"`
}

// executeCommand handles batch command dispatch
func (api *API) executeCommand(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(fmt.Errorf("invalid execute request: %v", err))
		return
	}

	results, err := api.service.ExecuteCommand(ctx, service.ExecuteRequest{
		AgentIDs:   req.AgentIDs,
		Command:    req.Command,
		TemplateID: req.TemplateID,
		Params:     req.Params,
		Timeout:    time.Duration(req.Timeout) * time.Second,
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrTemplateNotFound):
			resp.NotFound(err)
		case errors.Is(err, types.ErrMissingRequiredParameter),
			errors.Is(err, types.ErrUndeclaredPlaceholder),
			errors.Is(err, types.ErrUnresolvedDeclaredParameter):
			resp.UnprocessableEntity(err)
		default:
			resp.BadRequest(err)
		}
		return
	}

	resp.Success(gin.H{"results": results})
}

// getResult handles result polling for one execution
func (api *API) getResult(c *gin.Context) {
	resp := response.New(c, api.logger)

	agentID := c.Param("agent_id")
	commandID := c.Param("command_id")

	view, err := api.service.GetResult(c.Request.Context(), agentID, commandID)
	if err != nil {
		if errors.Is(err, types.ErrExecutionNotFound) {
			resp.NotFound(err)
			return
		}
		api.logger.Error("Failed to poll execution",
			zap.String("agent_id", agentID),
			zap.String("command_id", commandID),
			zap.Error(err))
		resp.InternalError(errors.New("failed to poll execution"))
		return
	}

	resp.Success(view)
}

// getHistory returns recent executions from the database
func (api *API) getHistory(c *gin.Context) {
	resp := response.New(c, api.logger)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	agentID := c.Query("agent_id")

	execs, err := api.service.History(c.Request.Context(), agentID, limit)
	if err != nil {
		api.logger.Error("Failed to load execution history", zap.Error(err))
		resp.InternalError(errors.New("failed to load execution history"))
		return
	}

	resp.Success(gin.H{"executions": execs})
}

// searchHistory runs a full-text search over indexed executions
func (api *API) searchHistory(c *gin.Context) {
	resp := response.New(c, api.logger)

	text := c.Query("q")
	if text == "" {
		resp.BadRequest(errors.New("query parameter q is required"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	execs, err := api.service.SearchHistory(c.Request.Context(), text, limit)
	if err != nil {
		api.logger.Error("Execution history search failed", zap.Error(err))
		resp.InternalError(errors.New("execution history search failed"))
		return
	}

	resp.Success(gin.H{"executions": execs})
}

package v1

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"fleetcmd/internal/server/api/response"
	"fleetcmd/internal/types"
)

// templateRequest represents the template create/update payload
type templateRequest struct {
	Name     string            `json:"name" binding:"required"`
	Category string            `json:"category"`
	Command  string            `json:"command" binding:"required"`
	Params   []types.Parameter `json:"params"`
	Tags     []string          `json:"tags"`
}

// getTemplates returns all templates, built-ins included
func (api *API) getTemplates(c *gin.Context) {
	resp := response.New(c, api.logger)
	templates := api.service.ListTemplates()
	resp.Success(gin.H{"templates": templates, "count": len(templates)})
}

// getTemplate returns one template
func (api *API) getTemplate(c *gin.Context) {
	resp := response.New(c, api.logger)

	tpl, err := api.service.GetTemplate(c.Param("id"))
	if err != nil {
		if errors.Is(err, types.ErrTemplateNotFound) {
			resp.NotFound(err)
			return
		}
		resp.InternalError(err)
		return
	}

	resp.Success(tpl)
}

// createTemplate stores a new user template
func (api *API) createTemplate(c *gin.Context) {
	resp := response.New(c, api.logger)

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(fmt.Errorf("invalid template: %v", err))
		return
	}

	tpl, err := api.service.CreateTemplate(c.Request.Context(), &types.CommandTemplate{
		Name:     req.Name,
		Category: req.Category,
		Command:  req.Command,
		Params:   req.Params,
		Tags:     req.Tags,
	})
	if err != nil {
		resp.BadRequest(err)
		return
	}

	resp.Created(tpl)
}

// updateTemplate replaces an existing user template
func (api *API) updateTemplate(c *gin.Context) {
	resp := response.New(c, api.logger)

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(fmt.Errorf("invalid template: %v", err))
		return
	}

	tpl, err := api.service.UpdateTemplate(c.Request.Context(), &types.CommandTemplate{
		ID:       c.Param("id"),
		Name:     req.Name,
		Category: req.Category,
		Command:  req.Command,
		Params:   req.Params,
		Tags:     req.Tags,
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrTemplateNotFound):
			resp.NotFound(err)
		case errors.Is(err, types.ErrTemplateReadOnly):
			resp.Conflict(err)
		default:
			resp.BadRequest(err)
		}
		return
	}

	resp.Success(tpl)
}

// deleteTemplate removes a user template
func (api *API) deleteTemplate(c *gin.Context) {
	resp := response.New(c, api.logger)

	if err := api.service.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, types.ErrTemplateNotFound):
			resp.NotFound(err)
		case errors.Is(err, types.ErrTemplateReadOnly):
			resp.Conflict(err)
		default:
			resp.InternalError(err)
		}
		return
	}

	resp.NoContent()
}

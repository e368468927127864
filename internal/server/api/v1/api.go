package v1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleetcmd/internal/server/api/response"
	"fleetcmd/internal/server/service"
)

// API represents the API
type API struct {
	service *service.Service
	logger  *zap.Logger
}

// NewAPI creates new API
func NewAPI(svc *service.Service, logger *zap.Logger) *API {
	return &API{
		service: svc,
		logger:  logger,
	}
}

// RegisterRoutes registers API routes
func (api *API) RegisterRoutes(r *gin.RouterGroup) {
	commands := r.Group("/commands")
	{
		commands.POST("/execute", api.executeCommand)
		commands.GET("/result/:agent_id/:command_id", api.getResult)
		commands.GET("/history", api.getHistory)
		commands.GET("/search", api.searchHistory)
	}

	agents := r.Group("/agents")
	{
		agents.GET("", api.getAgents)
		agents.GET("/:id", api.getAgent)
	}

	templates := r.Group("/templates")
	{
		templates.GET("", api.getTemplates)
		templates.POST("", api.createTemplate)
		templates.GET("/:id", api.getTemplate)
		templates.PUT("/:id", api.updateTemplate)
		templates.DELETE("/:id", api.deleteTemplate)
	}

	r.GET("/health", api.healthCheck)
}

// healthCheck reports component health
func (api *API) healthCheck(c *gin.Context) {
	resp := response.New(c, api.logger)
	resp.Success(api.service.CheckHealth(c.Request.Context()))
}

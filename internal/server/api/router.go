package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleetcmd/internal/server/api/middleware"
	av1 "fleetcmd/internal/server/api/v1"
	"fleetcmd/internal/server/config"
	"fleetcmd/internal/server/service"
)

// Router wires the middleware chain and versioned API groups.
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger *zap.Logger
}

// NewRouter builds the HTTP routing tree for the server.
func NewRouter(cfg *config.Config, svc *service.Service, logger *zap.Logger) *Router {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{engine: gin.New(), config: cfg, logger: logger}

	m := middleware.New(cfg, logger)
	r.engine.Use(m.RequestID(), m.Logger(), m.Recovery(), m.Secure())
	if cfg.API.CORS.Enabled {
		r.engine.Use(m.Cors())
	}
	if cfg.API.RateLimit.Enabled {
		r.engine.Use(m.RateLimit())
	}

	v1 := r.engine.Group("/api/v1")
	if cfg.API.Auth.Enabled {
		v1.Use(m.Auth())
	}
	av1.NewAPI(svc, logger).RegisterRoutes(v1)

	return r
}

// Handler returns the router as an http.Handler.
func (r *Router) Handler() http.Handler {
	return r.engine
}

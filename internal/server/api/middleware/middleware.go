package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetcmd/internal/server/api/response"
	"fleetcmd/internal/server/config"
)

// Middleware builds the handler chain pieces from server configuration.
type Middleware struct {
	logger *zap.Logger
	config *config.Config
}

// New creates a middleware manager.
func New(cfg *config.Config, logger *zap.Logger) *Middleware {
	return &Middleware{logger: logger, config: cfg}
}

func (m *Middleware) abort(c *gin.Context, status int, msg string) {
	response.New(c, m.logger).Error(status, errors.New(msg))
	c.Abort()
}

// RequestID tags each request, reusing the caller's X-Request-ID when sent.
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Logger emits one structured line per completed request.
func (m *Middleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		m.logger.Info("request completed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("error", c.Errors.ByType(gin.ErrorTypePrivate).String()))
	}
}

// Recovery turns handler panics into a logged 500.
func (m *Middleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 2048)
				n := runtime.Stack(buf, false)
				m.logger.Error("panic recovered",
					zap.String("error", fmt.Sprintf("%v", r)),
					zap.String("stack", string(buf[:n])))
				m.abort(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}

// Cors answers preflight requests and sets the configured origin headers.
func (m *Middleware) Cors() gin.HandlerFunc {
	cors := m.config.API.CORS
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", strings.Join(cors.AllowedOrigins, ","))
		c.Header("Access-Control-Allow-Methods", strings.Join(cors.AllowedMethods, ","))
		c.Header("Access-Control-Allow-Headers", strings.Join(cors.AllowedHeaders, ","))
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit caps requests per client IP over the configured window.
func (m *Middleware) RateLimit() gin.HandlerFunc {
	type client struct {
		count      int
		windowFrom time.Time
	}

	var mu sync.Mutex
	clients := make(map[string]*client)

	limit := m.config.API.RateLimit
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		cl := clients[ip]
		if cl == nil || now.Sub(cl.windowFrom) > limit.Window {
			cl = &client{windowFrom: now}
			clients[ip] = cl
		}
		cl.count++
		over := cl.count > limit.Requests
		mu.Unlock()

		if over {
			m.abort(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

// Auth enforces the bearer token for protected routes.
func (m *Middleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token != m.config.API.Auth.Token {
			m.abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}

// Secure adds the standard security headers.
func (m *Middleware) Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		if m.config.Server.TLS.Enabled {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

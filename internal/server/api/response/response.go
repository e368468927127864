package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope every API endpoint replies with.
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler writes enveloped responses for one request.
type Handler struct {
	ctx    *gin.Context
	logger *zap.Logger
}

// New creates a response handler bound to the request context.
func New(c *gin.Context, logger *zap.Logger) *Handler {
	return &Handler{ctx: c, logger: logger}
}

func (h *Handler) write(status int, message string, data interface{}, errText string) {
	h.ctx.JSON(status, Response{
		Code:      status,
		Message:   message,
		Data:      data,
		Error:     errText,
		RequestID: h.ctx.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

// Success sends a 200 with data.
func (h *Handler) Success(data interface{}) {
	h.write(http.StatusOK, "success", data, "")
}

// Created sends a 201 with the created resource.
func (h *Handler) Created(data interface{}) {
	h.write(http.StatusCreated, "created", data, "")
}

// NoContent sends a bare 204.
func (h *Handler) NoContent() {
	h.ctx.Status(http.StatusNoContent)
}

// Error sends an enveloped error with the given status.
func (h *Handler) Error(status int, err error) {
	h.write(status, "error", nil, err.Error())
}

func (h *Handler) BadRequest(err error)          { h.Error(http.StatusBadRequest, err) }
func (h *Handler) NotFound(err error)            { h.Error(http.StatusNotFound, err) }
func (h *Handler) Conflict(err error)            { h.Error(http.StatusConflict, err) }
func (h *Handler) UnprocessableEntity(err error) { h.Error(http.StatusUnprocessableEntity, err) }
func (h *Handler) InternalError(err error)       { h.Error(http.StatusInternalServerError, err) }

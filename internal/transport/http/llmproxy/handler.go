// Package llmproxy serves the OpenAI-compatible chat completion surface.
package llmproxy

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatd/internal/protocol"
	"github.com/xiaot623/gogo/chatd/internal/service"
	"github.com/xiaot623/gogo/chatd/internal/transport/http/respond"
)

// Handler handles OpenAI-compatible HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers OpenAI-compatible routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/chat/completions", h.ChatCompletions)
	e.GET("/v1/models", h.ListModels)
}

// ChatCompletions handles chat completion requests.
// POST /v1/chat/completions
func (h *Handler) ChatCompletions(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return respond.BadBody(c, err)
	}

	req, err := protocol.ParseRequest(body)
	if err != nil {
		return respond.Error(c, err)
	}

	if req.Stream {
		return respond.SSE(c, func(emit protocol.ChunkCallback) error {
			return h.service.ChatCompletionStream(ctx, req, emit)
		})
	}

	resp, err := h.service.ChatCompletion(ctx, req)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListModels handles the models list request.
// GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	models, err := h.service.ListModels(c.Request().Context())
	if err != nil {
		return respond.Error(c, err)
	}
	if models == nil {
		models = []protocol.Model{}
	}

	return c.JSON(http.StatusOK, protocol.ModelsResponse{
		Object: protocol.ObjectList,
		Data:   models,
	})
}

// Package v1 provides the session and health HTTP handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatd/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers session routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	sessions := e.Group("/v1/sessions/:session_id")
	sessions.POST("/messages", h.SendMessage)
	sessions.GET("/messages", h.GetSessionMessages)
	sessions.PUT("/system", h.SetSystemPrompt)
	sessions.POST("/clear", h.ClearSession)
	sessions.POST("/export", h.ExportSession)
	sessions.POST("/import", h.ImportSession)
	sessions.GET("/events", h.GetSessionEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

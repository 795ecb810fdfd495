// Package http provides the HTTP server implementation for chatd.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/chatd/internal/config"
	"github.com/xiaot623/gogo/chatd/internal/service"
	"github.com/xiaot623/gogo/chatd/internal/transport/http/llmproxy"
	v1 "github.com/xiaot623/gogo/chatd/internal/transport/http/v1"
	"github.com/xiaot623/gogo/chatd/internal/transport/ws"
)

// NewServer creates and configures the HTTP server: the OpenAI-compatible
// endpoints, the session API and the WebSocket endpoint.
func NewServer(svc *service.Service, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	llmHandler := llmproxy.NewHandler(svc)
	wsServer := ws.NewServer(svc, cfg)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	llmHandler.RegisterRoutes(e)
	e.GET("/v1/chat/ws", wsServer.HandleWebSocket)

	// Hijacked WebSocket connections are not closed by Shutdown itself.
	e.Server.RegisterOnShutdown(wsServer.Hub().CloseAll)

	return e
}

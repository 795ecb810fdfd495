package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
	"github.com/xiaot623/gogo/chatd/internal/repository"
	"github.com/xiaot623/gogo/chatd/internal/service"
	"github.com/xiaot623/gogo/chatd/internal/transport/http/respond"
)

// ConversationResponse is a session's stored conversation.
type ConversationResponse struct {
	SessionID string                 `json:"session_id"`
	Messages  []protocol.ChatMessage `json:"messages"`
}

type systemPromptRequest struct {
	Content string `json:"content"`
}

func conversationResponse(sessionID string, conv *domain.Conversation) ConversationResponse {
	return ConversationResponse{
		SessionID: sessionID,
		Messages:  protocol.MessagesFromConversation(conv),
	}
}

// SendMessage sends a user turn and returns the assistant reply.
// POST /v1/sessions/:session_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	sessionID := c.Param("session_id")
	ctx := c.Request().Context()

	var req service.SendRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadBody(c, err)
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, protocol.BuildErrorResponse(
			"content is required", protocol.ErrorTypeInvalidRequest, "content", ""))
	}

	if req.Stream {
		return respond.SSE(c, func(emit protocol.ChunkCallback) error {
			_, err := h.service.Send(ctx, sessionID, req, emit)
			return err
		})
	}

	resp, err := h.service.Send(ctx, sessionID, req, nil)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSessionMessages retrieves the conversation of a session.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")

	conv, err := h.service.Messages(c.Request().Context(), sessionID)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, conversationResponse(sessionID, conv))
}

// SetSystemPrompt sets or prepends the system prompt.
// PUT /v1/sessions/:session_id/system
func (h *Handler) SetSystemPrompt(c echo.Context) error {
	sessionID := c.Param("session_id")

	var req systemPromptRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadBody(c, err)
	}

	conv, err := h.service.SetSystem(c.Request().Context(), sessionID, req.Content)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, conversationResponse(sessionID, conv))
}

// ClearSession drops everything but the system prompt.
// POST /v1/sessions/:session_id/clear
func (h *Handler) ClearSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	conv, err := h.service.Clear(c.Request().Context(), sessionID)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, conversationResponse(sessionID, conv))
}

// ExportSession writes the conversation to its chat file.
// POST /v1/sessions/:session_id/export
func (h *Handler) ExportSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	path, err := h.service.Export(c.Request().Context(), sessionID)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"session_id": sessionID,
		"path":       path,
	})
}

// ImportSession replaces the conversation with its chat file.
// POST /v1/sessions/:session_id/import
func (h *Handler) ImportSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	conv, err := h.service.Import(c.Request().Context(), sessionID)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, conversationResponse(sessionID, conv))
}

// GetSessionEvents retrieves the event log of a session.
// GET /v1/sessions/:session_id/events
func (h *Handler) GetSessionEvents(c echo.Context) error {
	sessionID := c.Param("session_id")
	filter := store.EventFilter{Limit: 100}
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			filter.Limit = val
		}
	}
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			filter.AfterTs = val
		}
	}
	if types := c.QueryParam("types"); types != "" {
		filter.Types = strings.Split(types, ",")
	}

	events, err := h.service.Events(c.Request().Context(), sessionID, filter)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

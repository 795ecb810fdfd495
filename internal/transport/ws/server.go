// Package ws serves chat completions over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatd/internal/config"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
	"github.com/xiaot623/gogo/chatd/internal/service"
)

// Server handles WebSocket connections. Every text frame a client sends is
// a chat completion request; requests on one connection are served in
// order. Closing the connection cancels the request being served.
type Server struct {
	cfg      *config.Config
	service  *service.Service
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(svc *service.Service, cfg *config.Config) *Server {
	return &Server{
		cfg:     cfg,
		service: svc,
		hub:     NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// HandleWebSocket upgrades the connection and serves it until the client
// closes it.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return nil
	}

	conn := s.hub.Register(ws)
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	if s.cfg.WSMaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.WSMaxMessageSize)
	}

	// Cancelled when the connection goes away, which stops the generation
	// being served.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan frame)
	go s.readFrames(ctx, cancel, ws, frames)

	for f := range frames {
		if f.msgType != websocket.TextMessage {
			if err := s.sendError(conn, protocol.BuildErrorResponse("only text frames are accepted", protocol.ErrorTypeInvalidRequest, "", "invalid_frame")); err != nil {
				return nil
			}
			continue
		}
		if err := s.handleMessage(ctx, conn, f.data); err != nil {
			log.Printf("WARN: WebSocket write failed, closing: %v", err)
			return nil
		}
	}
	return nil
}

type frame struct {
	msgType int
	data    []byte
}

// readFrames hands incoming frames to the serving loop until the connection
// fails or closes, then cancels ctx and closes frames.
func (s *Server) readFrames(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, frames chan<- frame) {
	defer close(frames)
	defer cancel()
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		select {
		case frames <- frame{msgType: msgType, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage serves one request. Only write failures are returned;
// request failures are reported to the client as error frames.
func (s *Server) handleMessage(ctx context.Context, conn *Connection, data []byte) error {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		_, body := protocol.ErrorFromErr(err)
		return s.sendError(conn, body)
	}

	if !req.Stream {
		resp, err := s.service.ChatCompletion(ctx, req)
		if err != nil {
			_, body := protocol.ErrorFromErr(err)
			return s.sendError(conn, body)
		}
		return s.sendJSON(conn, resp)
	}

	var writeErr error
	sent := false
	err = s.service.ChatCompletionStream(ctx, req, func(chunk *protocol.ChatCompletionChunk) error {
		sent = true
		writeErr = s.sendJSON(conn, chunk)
		return writeErr
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		_, body := protocol.ErrorFromErr(err)
		if err := s.sendError(conn, body); err != nil {
			return err
		}
		// A request that failed before its first chunk is answered by the
		// error frame alone.
		if !sent {
			return nil
		}
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(protocol.DoneSentinel), s.cfg.WSWriteTimeout)
}

func (s *Server) sendJSON(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data, s.cfg.WSWriteTimeout)
}

func (s *Server) sendError(conn *Connection, body protocol.ErrorResponse) error {
	return s.sendJSON(conn, body)
}

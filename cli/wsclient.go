package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
)

// wsClient talks to the server's WebSocket endpoint. The conversation is
// kept on the client and sent whole with every request.
type wsClient struct {
	conn  *websocket.Conn
	conv  *domain.Conversation
	model string
}

func dialWS(addr, model string) (*wsClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &wsClient{conn: conn, conv: domain.NewConversation(), model: model}, nil
}

func (c *wsClient) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// send streams one user turn, writing content fragments to out.
func (c *wsClient) send(text string, out io.Writer) error {
	msg, err := domain.NewMessage(domain.RoleUser, text)
	if err != nil {
		return err
	}
	work := c.conv.Clone()
	work.Append(msg)

	req := protocol.ChatCompletionRequest{
		Model:    c.model,
		Messages: protocol.MessagesFromConversation(work),
		Stream:   true,
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	var reply strings.Builder
	var failure error
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if string(data) == protocol.DoneSentinel {
			break
		}

		var errResp protocol.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != nil {
			failure = fmt.Errorf("%s: %s", errResp.Error.Type, errResp.Error.Message)
			// Errors before the first chunk are not followed by [DONE].
			if reply.Len() == 0 {
				return failure
			}
			continue
		}

		var chunk protocol.ChatCompletionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return fmt.Errorf("unmarshal chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			reply.WriteString(choice.Delta.Content)
			io.WriteString(out, choice.Delta.Content)
		}
	}
	if failure != nil {
		return failure
	}

	work.Append(domain.Message{Role: domain.RoleAssistant, Content: reply.String()})
	c.conv = work
	return nil
}

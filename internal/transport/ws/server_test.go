package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatd/internal/config"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
	"github.com/xiaot623/gogo/chatd/internal/service"
	"github.com/xiaot623/gogo/chatd/tests/helpers"
)

func dialTestServer(t *testing.T, engine llm.Engine) *websocket.Conn {
	t.Helper()
	cfg := &config.Config{DefaultModel: "test-model", WSWriteTimeout: time.Second, WSMaxMessageSize: 1 << 16}
	svc := service.New(helpers.NewTestSQLiteStore(t), nil, engine, cfg, nil)

	e := echo.New()
	e.GET("/v1/chat/ws", NewServer(svc, cfg).HandleWebSocket)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	return data
}

func TestWebSocketCompletion(t *testing.T) {
	conn := dialTestServer(t, llm.NewMockClient())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[{"role":"user","content":"hi"}]}`)))

	var resp protocol.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(readText(t, conn), &resp))
	assert.Equal(t, protocol.ObjectChatCompletion, resp.Object)
	assert.Equal(t, "test-model", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Contains(t, resp.Choices[0].Message.Content, "hi")
}

func TestWebSocketStream(t *testing.T) {
	conn := dialTestServer(t, &llm.MockClient{ChunkSize: 5, Reply: "Hello, world"})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)))

	var chunks []protocol.ChatCompletionChunk
	for {
		data := readText(t, conn)
		if string(data) == protocol.DoneSentinel {
			break
		}
		var chunk protocol.ChatCompletionChunk
		require.NoError(t, json.Unmarshal(data, &chunk))
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 5)
	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	require.NotNil(t, chunks[4].Choices[0].FinishReason)
	assert.Equal(t, "stop", *chunks[4].Choices[0].FinishReason)
}

func TestWebSocketErrorKeepsConnection(t *testing.T) {
	conn := dialTestServer(t, llm.NewMockClient())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[]}`)))
	var errResp protocol.ErrorResponse
	require.NoError(t, json.Unmarshal(readText(t, conn), &errResp))
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "missing_messages", errResp.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	errResp = protocol.ErrorResponse{}
	require.NoError(t, json.Unmarshal(readText(t, conn), &errResp))
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "invalid_frame", errResp.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[{"role":"user","content":"again"}]}`)))
	var resp protocol.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(readText(t, conn), &resp))
	require.Len(t, resp.Choices, 1)
}

// blockingEngine holds Generate until its context ends and reports why.
type blockingEngine struct {
	*llm.MockClient
	started chan struct{}
	ended   chan error
}

func (b *blockingEngine) Generate(ctx context.Context, prompt *llm.Prompt) (*llm.Generation, error) {
	close(b.started)
	<-ctx.Done()
	b.ended <- ctx.Err()
	return nil, ctx.Err()
}

func TestWebSocketDisconnectCancelsCompletion(t *testing.T) {
	engine := &blockingEngine{
		MockClient: llm.NewMockClient(),
		started:    make(chan struct{}),
		ended:      make(chan error, 1),
	}
	conn := dialTestServer(t, engine)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[{"role":"user","content":"hi"}]}`)))
	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation never started")
	}

	require.NoError(t, conn.Close())

	select {
	case err := <-engine.ended:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("generation was not cancelled after the client left")
	}
}

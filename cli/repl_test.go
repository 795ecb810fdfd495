package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatd/internal/chatfile"
	"github.com/xiaot623/gogo/chatd/internal/config"
	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/service"
	"github.com/xiaot623/gogo/chatd/internal/transport/ws"
	"github.com/xiaot623/gogo/chatd/tests/helpers"
)

type failingEngine struct {
	*llm.MockClient
}

func (f *failingEngine) GenerateStream(ctx context.Context, prompt *llm.Prompt, callback llm.FragmentCallback) (*llm.Generation, error) {
	_ = callback("half a rep")
	return nil, fmt.Errorf("%w: boom", domain.ErrEngine)
}

func TestREPLTurnAndCommands(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	r := newREPL(&llm.MockClient{ChunkSize: 3, Reply: "pong"}, "m", 0, &out)

	quit, err := r.handleLine(ctx, "/system be brief")
	require.NoError(t, err)
	assert.False(t, quit)

	_, err = r.handleLine(ctx, "ping")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Assistant: pong")
	require.Equal(t, 3, r.conv.Len())
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "pong"}, r.conv.At(2))

	_, err = r.handleLine(ctx, "/clear")
	require.NoError(t, err)
	assert.Equal(t, 1, r.conv.Len())

	_, err = r.handleLine(ctx, "/system")
	assert.Error(t, err)

	quit, err = r.handleLine(ctx, "/exit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestREPLRollsBackFailedTurn(t *testing.T) {
	var out bytes.Buffer
	r := newREPL(&failingEngine{MockClient: llm.NewMockClient()}, "m", 0, &out)
	require.NoError(t, r.conv.SetOrPrependSystemPrompt("sys"))

	_, err := r.handleLine(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrEngine)
	assert.Equal(t, 1, r.conv.Len())
}

func TestREPLRejectsNul(t *testing.T) {
	r := newREPL(llm.NewMockClient(), "m", 0, &bytes.Buffer{})
	_, err := r.handleLine(context.Background(), "a\x00b")
	assert.ErrorIs(t, err, domain.ErrNulByteInString)
	assert.Equal(t, 0, r.conv.Len())
}

func TestREPLTrimsToBudget(t *testing.T) {
	var out bytes.Buffer
	r := newREPL(&llm.MockClient{Reply: strings.Repeat("y", 50)}, "m", 200, &out)
	require.NoError(t, r.conv.SetOrPrependSystemPrompt("sys"))

	for i := 0; i < 5; i++ {
		_, err := r.handleLine(context.Background(), strings.Repeat("x", 50))
		require.NoError(t, err)
	}
	assert.True(t, r.conv.HasSystemPrompt())
	assert.Contains(t, out.String(), "dropped")
	assert.Less(t, r.conv.Len(), 11)
}

func TestREPLKeepsOversizedLine(t *testing.T) {
	r := newREPL(&llm.MockClient{Reply: "ok"}, "m", 50, &bytes.Buffer{})
	require.NoError(t, r.conv.SetOrPrependSystemPrompt("sys"))

	big := strings.Repeat("x", 500)
	_, err := r.handleLine(context.Background(), big)
	require.NoError(t, err)
	require.Equal(t, 3, r.conv.Len())
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: big}, r.conv.At(1))
}

func TestREPLRunSavesOnExit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.json")

	var out bytes.Buffer
	r := newREPL(&llm.MockClient{Reply: "pong"}, "m", 0, &out)
	r.savePath = path

	require.NoError(t, r.run(context.Background(), strings.NewReader("ping\n/exit\n")))

	conv, err := chatfile.Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, "ping", conv.At(0).Content)

	// Loading into a fresh session continues where the last left off.
	r2 := newREPL(&llm.MockClient{Reply: "pong"}, "m", 0, &out)
	require.NoError(t, r2.load(path))
	assert.True(t, r2.conv.Equal(conv))

	_, err = r2.handleLine(context.Background(), "/load "+filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, r2.load(filepath.Join(dir, "missing.json")))
	assert.Equal(t, 2, r2.conv.Len())
}

func TestREPLLoadLenient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edited.json")
	require.NoError(t, os.WriteFile(path, []byte("[\n  // note\n  {\"role\": \"user\", \"content\": \"hi\"},\n]\n"), 0o600))

	var out bytes.Buffer
	r := newREPL(llm.NewMockClient(), "m", 0, &out)

	_, err := r.handleLine(context.Background(), "/load "+path)
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)
	assert.Equal(t, 0, r.conv.Len())

	_, err = r.handleLine(context.Background(), "/load --lenient "+path)
	require.NoError(t, err)
	require.Equal(t, 1, r.conv.Len())
	assert.Equal(t, "hi", r.conv.At(0).Content)
}

func TestWSClient(t *testing.T) {
	cfg := &config.Config{DefaultModel: "test-model", WSWriteTimeout: time.Second}
	svc := service.New(helpers.NewTestSQLiteStore(t), nil, &llm.MockClient{ChunkSize: 2, Reply: "hello there"}, cfg, nil)
	e := echo.New()
	e.GET("/v1/chat/ws", ws.NewServer(svc, cfg).HandleWebSocket)
	server := httptest.NewServer(e)
	defer server.Close()

	client, err := dialWS("ws"+strings.TrimPrefix(server.URL, "http")+"/v1/chat/ws", "")
	require.NoError(t, err)
	defer client.Close()

	var out bytes.Buffer
	require.NoError(t, client.send("hi", &out))
	assert.Equal(t, "hello there", out.String())
	require.NoError(t, client.send("again", &out))
	assert.Equal(t, 4, client.conv.Len())
}

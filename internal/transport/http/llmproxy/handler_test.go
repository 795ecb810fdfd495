package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatd/internal/config"
	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
	"github.com/xiaot623/gogo/chatd/internal/service"
	"github.com/xiaot623/gogo/chatd/tests/helpers"
)

// brokenStream emits some fragments and then fails.
type brokenStream struct {
	*llm.MockClient
}

func (b *brokenStream) GenerateStream(ctx context.Context, prompt *llm.Prompt, callback llm.FragmentCallback) (*llm.Generation, error) {
	if err := callback("partial"); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: connection reset", domain.ErrEngine)
}

func newTestHandler(t *testing.T, engine llm.Engine) *Handler {
	t.Helper()
	cfg := &config.Config{DefaultModel: "test-model"}
	svc := service.New(helpers.NewTestSQLiteStore(t), nil, engine, cfg, nil)
	return NewHandler(svc)
}

func post(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.ChatCompletions(e.NewContext(req, rec)))
	return rec
}

func TestChatCompletions(t *testing.T) {
	h := newTestHandler(t, llm.NewMockClient())

	rec := post(t, h, `{"model":"m","messages":[{"role":"user","content":"hi"}],"logit_bias":{"1":2}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp protocol.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "m", resp.Model)

	var envelope struct {
		Usage map[string]int `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, envelope.Usage["prompt_tokens"]+envelope.Usage["completion_tokens"], envelope.Usage["total_tokens"])
}

func TestChatCompletionsErrors(t *testing.T) {
	h := newTestHandler(t, llm.NewMockClient())

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "syntax", body: `{"messages":`, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "absent messages", body: `{"model":"m"}`, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "empty messages", body: `{"messages":[]}`, status: http.StatusBadRequest, code: "missing_messages"},
		{name: "bad role", body: `{"messages":[{"role":"wizard","content":"x"}]}`, status: http.StatusBadRequest, code: "invalid_role"},
		{name: "nul", body: `{"messages":[{"role":"user","content":"a\u0000b"}]}`, status: http.StatusBadRequest, code: "nul_byte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var resp protocol.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, protocol.ErrorTypeInvalidRequest, resp.Error.Type)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestChatCompletionsStream(t *testing.T) {
	h := newTestHandler(t, &llm.MockClient{ChunkSize: 5, Reply: "Hello, world"})

	rec := post(t, h, `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	var chunks []protocol.ChatCompletionChunk
	done := false
	for _, event := range strings.Split(rec.Body.String(), "\n\n") {
		if event == "" {
			continue
		}
		data, ok := strings.CutPrefix(event, "data: ")
		require.True(t, ok, "bad event %q", event)
		if data == protocol.DoneSentinel {
			done = true
			continue
		}
		require.False(t, done, "event after [DONE]")
		var chunk protocol.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(data), &chunk))
		chunks = append(chunks, chunk)
	}
	require.True(t, done)
	require.Len(t, chunks, 5)
	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	var text strings.Builder
	for _, c := range chunks[1:4] {
		text.WriteString(c.Choices[0].Delta.Content)
	}
	assert.Equal(t, "Hello, world", text.String())
	require.NotNil(t, chunks[4].Choices[0].FinishReason)
	assert.Equal(t, "stop", *chunks[4].Choices[0].FinishReason)
}

func TestChatCompletionsStreamFailsBeforeFirstChunk(t *testing.T) {
	h := newTestHandler(t, llm.NewClient("http://127.0.0.1:1", "", 0))

	rec := post(t, h, `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

func TestChatCompletionsStreamFailsMidway(t *testing.T) {
	h := newTestHandler(t, &brokenStream{MockClient: llm.NewMockClient()})

	rec := post(t, h, `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"content":"partial"`)
	assert.Contains(t, body, `"upstream_error"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestListModels(t *testing.T) {
	h := newTestHandler(t, llm.NewMockClient())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListModels(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp protocol.ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "list", resp.Object)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "mock-chat", resp.Data[0].ID)
}

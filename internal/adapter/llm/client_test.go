package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

func testPrompt(t *testing.T) *Prompt {
	t.Helper()
	conv := domain.NewConversation()
	require.NoError(t, conv.SetOrPrependSystemPrompt("sys"))
	conv.Append(domain.Message{Role: domain.RoleUser, Content: "hello"})
	maxTokens := 16
	return NewPrompt("gpt", conv, Options{MaxTokens: &maxTokens})
}

func TestClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["max_tokens"] != float64(16) {
			t.Errorf("max_tokens not forwarded: %v", req["max_tokens"])
		}
		msgs := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("expected 2 messages, got %d", len(msgs))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	gen, err := client.Generate(context.Background(), testPrompt(t))
	require.NoError(t, err)
	assert.Equal(t, "hi", gen.Text)
	assert.Equal(t, "stop", gen.FinishReason)
	assert.Equal(t, 1, gen.PromptTokens)
	assert.Equal(t, 2, gen.CompletionTokens)
	assert.Equal(t, 3, gen.Usage().TotalTokens())
}

func TestClientGenerateEstimatesMissingUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"abcdefgh"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	gen, err := NewClient(server.URL, "", time.Second).Generate(context.Background(), testPrompt(t))
	require.NoError(t, err)
	assert.Equal(t, 2, gen.CompletionTokens)
	assert.Positive(t, gen.PromptTokens)
}

func TestClientGenerateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", time.Second).Generate(context.Background(), testPrompt(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngine)
	assert.Contains(t, err.Error(), "bad")
}

func TestClientGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"include_usage":true`) {
			t.Errorf("stream_options missing: %s", body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"},\"finish_reason\":null}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"},\"finish_reason\":null}]}\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":null}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"length\"}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt\",\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	var fragments []string
	gen, err := NewClient(server.URL, "", time.Second).GenerateStream(context.Background(), testPrompt(t), func(f string) error {
		fragments = append(fragments, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Equal(t, "Hello", gen.Text)
	assert.Equal(t, "length", gen.FinishReason)
	assert.Equal(t, 5, gen.PromptTokens)
	assert.Equal(t, 7, gen.Usage().TotalTokens())
}

func TestClientGenerateStreamWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}")
	}))
	defer server.Close()

	gen, err := NewClient(server.URL, "", time.Second).GenerateStream(context.Background(), testPrompt(t), func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "hi", gen.Text)
	assert.Equal(t, domain.FinishReasonStop, gen.FinishReason)
}

func TestClientListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt","object":"model","created":1,"owned_by":"openai"}]}`)
	}))
	defer server.Close()

	models, err := NewClient(server.URL, "", time.Second).ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gpt", models[0].ID)
}

func TestClientListModelsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "bad")
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", time.Second).ListModels(context.Background())
	assert.ErrorIs(t, err, domain.ErrEngine)
}

func TestClientSetHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "secret", time.Second).ListModels(context.Background())
	require.NoError(t, err)
}

func TestClientCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient(server.URL, "", 5*time.Second).Generate(ctx, testPrompt(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
)

// Client is an engine backed by an OpenAI-compatible upstream server, such
// as a local llama.cpp or vLLM instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new upstream engine client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// upstreamRequest is the request sent upstream.
type upstreamRequest struct {
	protocol.ChatCompletionRequest
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

// upstreamChunk is a streamed chunk as upstream servers send it; the last
// one may carry usage.
type upstreamChunk struct {
	protocol.ChatCompletionChunk
	Usage *protocol.Usage `json:"usage,omitempty"`
}

func (c *Client) buildRequest(prompt *Prompt, stream bool) *upstreamRequest {
	req := &upstreamRequest{
		ChatCompletionRequest: protocol.ChatCompletionRequest{
			Model:       prompt.Model,
			Messages:    protocol.MessagesFromConversation(prompt.Conversation),
			Temperature: prompt.Options.Temperature,
			TopP:        prompt.Options.TopP,
			MaxTokens:   prompt.Options.MaxTokens,
			Seed:        prompt.Options.Seed,
			Stop:        prompt.Options.Stop,
			Stream:      stream,
		},
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return req
}

// Generate sends a chat completion request (non-streaming).
func (c *Client) Generate(ctx context.Context, prompt *Prompt) (*Generation, error) {
	resp, err := c.do(ctx, c.buildRequest(prompt, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.wrap(ctx, "failed to read response", err)
	}

	var result struct {
		protocol.ChatCompletionResponse
		Usage *protocol.Usage `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal response: %v", domain.ErrEngine, err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", domain.ErrEngine)
	}

	choice := result.Choices[0]
	gen := &Generation{
		Model:        result.Model,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	c.fillUsage(gen, prompt, result.Usage)
	return gen, nil
}

// GenerateStream sends a streaming chat completion request and hands each
// content fragment to callback.
func (c *Client) GenerateStream(ctx context.Context, prompt *Prompt, callback FragmentCallback) (*Generation, error) {
	resp, err := c.do(ctx, c.buildRequest(prompt, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Parse SSE stream
	reader := bufio.NewReader(resp.Body)
	gen := &Generation{Model: prompt.Model}
	var text strings.Builder
	var usage *protocol.Usage

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, c.wrap(ctx, "failed to read stream", err)
		}
		done := err == io.EOF

		line = strings.TrimSpace(line)
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			data = strings.TrimSpace(data)
			if data == protocol.DoneSentinel {
				break
			}

			var chunk upstreamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
				// Skip malformed chunks
				continue
			}
			if chunk.Model != "" {
				gen.Model = chunk.Model
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					text.WriteString(choice.Delta.Content)
					if err := callback(choice.Delta.Content); err != nil {
						return nil, err
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					gen.FinishReason = *choice.FinishReason
				}
			}
		}
		if done {
			break
		}
	}

	gen.Text = text.String()
	if gen.FinishReason == "" {
		gen.FinishReason = domain.FinishReasonStop
	}
	c.fillUsage(gen, prompt, usage)
	return gen, nil
}

// ListModels retrieves the list of available models.
func (c *Client) ListModels(ctx context.Context) ([]protocol.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.wrap(ctx, "failed to send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.wrap(ctx, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream error [%d]: %s", domain.ErrEngine, resp.StatusCode, string(respBody))
	}

	var result protocol.ModelsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal response: %v", domain.ErrEngine, err)
	}

	return result.Data, nil
}

func (c *Client) do(ctx context.Context, req *upstreamRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.wrap(ctx, "failed to send request", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp protocol.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, fmt.Errorf("%w: upstream error [%d]: %s (type: %s)", domain.ErrEngine, resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return nil, fmt.Errorf("%w: upstream error [%d]: %s", domain.ErrEngine, resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// wrap reports cancellation as itself and anything else as an engine
// failure.
func (c *Client) wrap(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrEngine, msg, err)
}

func (c *Client) fillUsage(gen *Generation, prompt *Prompt, usage *protocol.Usage) {
	if usage != nil {
		gen.PromptTokens = usage.PromptTokens()
		gen.CompletionTokens = usage.CompletionTokens()
		return
	}
	gen.PromptTokens = EstimateTokens(prompt.Text)
	gen.CompletionTokens = EstimateTokens(gen.Text)
}

// setHeaders sets common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

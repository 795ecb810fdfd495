package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatd/internal/config"
	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
	"github.com/xiaot623/gogo/chatd/policy"
)

// ChatCompletion serves a stateless, non-streaming completion.
func (s *Service) ChatCompletion(ctx context.Context, req *protocol.ChatCompletionRequest) (*protocol.ChatCompletionResponse, error) {
	conv, model, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, "", model, conv, optionsFromRequest(req), nil)
}

// ChatCompletionStream serves a stateless, streaming completion. Chunks are
// handed to emit in order; nothing is emitted before the engine produces
// its first fragment, so early failures can still be reported as plain
// errors.
func (s *Service) ChatCompletionStream(ctx context.Context, req *protocol.ChatCompletionRequest, emit protocol.ChunkCallback) error {
	conv, model, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}
	_, err = s.complete(ctx, "", model, conv, optionsFromRequest(req), emit)
	return err
}

// ListModels retrieves the list of available models.
func (s *Service) ListModels(ctx context.Context) ([]protocol.Model, error) {
	return s.engine.ListModels(ctx)
}

func (s *Service) prepare(ctx context.Context, req *protocol.ChatCompletionRequest) (*domain.Conversation, string, error) {
	conv, err := req.Conversation()
	if err != nil {
		return nil, "", err
	}
	if err := s.admit(ctx, req.Model, req.MaxTokens, req.Stream, conv.Len()); err != nil {
		return nil, "", err
	}
	s.trim(ctx, "", conv)
	return conv, s.model(req.Model), nil
}

func (s *Service) admit(ctx context.Context, model string, maxTokens *int, stream bool, messages int) error {
	if s.policyEngine == nil {
		return nil
	}
	return s.policyEngine.Check(ctx, policy.Request{
		Model:        model,
		MaxTokens:    maxTokens,
		Stream:       stream,
		MessageCount: messages,
	})
}

// trim applies the history cap and the byte budget to conv.
func (s *Service) trim(ctx context.Context, sessionID string, conv *domain.Conversation) int {
	dropped := llm.TrimToMessageCount(conv, s.config.MaxHistoryMessages)
	dropped += llm.TrimToBudget(conv, s.config.ContextBudgetBytes, llm.PromptSize)
	if dropped > 0 {
		config.Debugf("trimmed %d messages, %d remain", dropped, conv.Len())
		s.logEvent(ctx, sessionID, domain.EventTypeContextTrimmed, domain.ContextTrimmedPayload{
			Dropped:   dropped,
			Remaining: conv.Len(),
		})
	}
	return dropped
}

func (s *Service) model(requested string) string {
	if requested != "" {
		return requested
	}
	return s.config.DefaultModel
}

func optionsFromRequest(req *protocol.ChatCompletionRequest) llm.Options {
	return llm.Options{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Seed:        req.Seed,
		Stop:        req.Stop,
	}
}

// complete runs the engine over conv. With a nil emit the reply is
// generated whole; otherwise it is streamed through a ChunkStream. The
// returned response carries the full reply in both cases.
func (s *Service) complete(ctx context.Context, sessionID, model string, conv *domain.Conversation, opts llm.Options, emit protocol.ChunkCallback) (*protocol.ChatCompletionResponse, error) {
	id := protocol.NewCompletionID()
	requestID := "llm_" + uuid.New().String()[:8]
	startTime := time.Now()
	prompt := llm.NewPrompt(model, conv, opts)

	s.logEvent(ctx, sessionID, domain.EventTypeLLMCallStarted, domain.LLMCallStartedPayload{
		RequestID: requestID,
		Model:     model,
		Stream:    emit != nil,
		Messages:  conv.Len(),
	})

	var (
		gen *llm.Generation
		err error
	)
	if emit == nil {
		gen, err = s.engine.Generate(ctx, prompt)
	} else {
		gen, err = s.stream(ctx, id, model, prompt, emit)
	}

	payload := domain.LLMCallDonePayload{
		RequestID: requestID,
		Model:     model,
		LatencyMs: time.Since(startTime).Milliseconds(),
	}
	if err != nil {
		payload.Error = err.Error()
		s.logEvent(ctx, sessionID, domain.EventTypeLLMCallDone, payload)
		log.Printf("WARN: generation %s failed: %v", requestID, err)
		return nil, err
	}

	if gen.Model != "" {
		payload.Model = gen.Model
	}
	usage := gen.Usage()
	payload.FinishReason = gen.FinishReason
	payload.PromptTokens = usage.PromptTokens()
	payload.CompletionTokens = usage.CompletionTokens()
	payload.TotalTokens = usage.TotalTokens()
	s.logEvent(ctx, sessionID, domain.EventTypeLLMCallDone, payload)

	return protocol.BuildResponse(id, model, domain.RoleAssistant, gen.Text, gen.FinishReason, usage), nil
}

// stream drives a ChunkStream from engine fragments. The role chunk is held
// back until the first fragment or the finish.
func (s *Service) stream(ctx context.Context, id, model string, prompt *llm.Prompt, emit protocol.ChunkCallback) (*llm.Generation, error) {
	chunks := protocol.NewChunkStream(id, model, emit)
	began := false
	begin := func() error {
		if began {
			return nil
		}
		began = true
		return chunks.Begin(ctx)
	}

	gen, err := s.engine.GenerateStream(ctx, prompt, func(fragment string) error {
		if err := begin(); err != nil {
			return err
		}
		return chunks.Content(ctx, fragment)
	})
	if err != nil {
		return nil, err
	}
	if err := begin(); err != nil {
		return nil, err
	}
	if err := chunks.Finish(ctx, gen.FinishReason); err != nil {
		return nil, err
	}
	return gen, nil
}

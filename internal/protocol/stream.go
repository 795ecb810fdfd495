package protocol

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// ChunkCallback receives each chunk as it is produced. Returning an error
// stops the stream.
type ChunkCallback func(chunk *ChatCompletionChunk) error

type streamState uint8

const (
	streamNew streamState = iota
	streamOpen
	streamFinished
)

// ChunkStream produces the chunks of one streamed completion: a role chunk,
// one chunk per content fragment, and a terminal chunk carrying the finish
// reason. It is push-style and cannot be restarted; calls out of that order
// fail with domain.ErrStreamState. Cancellation of ctx is checked before
// every chunk.
type ChunkStream struct {
	id      string
	model   string
	created int64
	emit    ChunkCallback
	state   streamState
}

// NewChunkStream returns a stream that hands chunks to emit.
func NewChunkStream(id, model string, emit ChunkCallback) *ChunkStream {
	return &ChunkStream{
		id:      id,
		model:   model,
		created: now().Unix(),
		emit:    emit,
	}
}

// Begin emits the role chunk.
func (s *ChunkStream) Begin(ctx context.Context) error {
	if s.state != streamNew {
		return fmt.Errorf("%w: begin called twice", domain.ErrStreamState)
	}
	s.state = streamOpen
	return s.send(ctx, Delta{Role: domain.RoleString(domain.RoleAssistant)}, nil)
}

// Content emits a content chunk. Empty fragments produce nothing.
func (s *ChunkStream) Content(ctx context.Context, fragment string) error {
	if s.state != streamOpen {
		return fmt.Errorf("%w: content outside an open stream", domain.ErrStreamState)
	}
	if fragment == "" {
		return nil
	}
	return s.send(ctx, Delta{Content: fragment}, nil)
}

// Finish emits the terminal chunk. No chunks may follow.
func (s *ChunkStream) Finish(ctx context.Context, finishReason string) error {
	if s.state != streamOpen {
		return fmt.Errorf("%w: finish outside an open stream", domain.ErrStreamState)
	}
	s.state = streamFinished
	return s.send(ctx, Delta{}, &finishReason)
}

func (s *ChunkStream) send(ctx context.Context, delta Delta, finishReason *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.emit(&ChatCompletionChunk{
		ID:      s.id,
		Object:  ObjectChatCompletionChunk,
		Created: s.created,
		Model:   s.model,
		Choices: []ChunkChoice{
			{
				Index:        0,
				Delta:        delta,
				FinishReason: finishReason,
			},
		},
	})
}

// StreamChunks emits the full chunk sequence for already known fragments.
func StreamChunks(ctx context.Context, id, model string, fragments []string, finishReason string, emit ChunkCallback) error {
	s := NewChunkStream(id, model, emit)
	if err := s.Begin(ctx); err != nil {
		return err
	}
	for _, f := range fragments {
		if err := s.Content(ctx, f); err != nil {
			return err
		}
	}
	return s.Finish(ctx, finishReason)
}

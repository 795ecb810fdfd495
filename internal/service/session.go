package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatd/internal/chatfile"
	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateSessionID rejects ids that are not safe as a file name.
func ValidateSessionID(sessionID string) error {
	if !sessionIDPattern.MatchString(sessionID) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSessionID, sessionID)
	}
	return nil
}

// SendRequest is one user turn in a session.
type SendRequest struct {
	Content     string   `json:"content"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

// sessionState owns a session's conversation. mu is held for the whole of
// every operation on the session.
type sessionState struct {
	mu   sync.Mutex
	conv *domain.Conversation
}

type registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*sessionState)}
}

func (r *registry) get(sessionID string) *sessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		r.sessions[sessionID] = st
	}
	return st
}

// withSession validates the id, locks the session and makes sure its
// conversation is loaded before calling fn.
func (s *Service) withSession(ctx context.Context, sessionID string, fn func(st *sessionState) error) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	st := s.sessions.get(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.conv == nil {
		conv, err := s.load(ctx, sessionID)
		if err != nil {
			return err
		}
		st.conv = conv
	}
	return fn(st)
}

// load reads a session's conversation, cache first. Unknown sessions are
// created, seeded with the configured system prompt.
func (s *Service) load(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	if s.cache != nil {
		conv, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			log.Printf("WARN: session cache read failed for %s: %v", sessionID, err)
		} else if conv != nil {
			// The store row may have been lost; make sure events can reference it.
			if _, err := s.store.GetOrCreateSession(ctx, sessionID); err != nil {
				return nil, err
			}
			return conv, nil
		}
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		now := time.Now()
		if err := s.store.CreateSession(ctx, &domain.Session{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}); err != nil {
			return nil, err
		}
		conv := domain.NewConversation()
		if s.config.SystemPrompt != "" {
			if err := conv.SetOrPrependSystemPrompt(s.config.SystemPrompt); err != nil {
				return nil, err
			}
			if err := s.persist(ctx, sessionID, conv); err != nil {
				return nil, err
			}
		}
		return conv, nil
	}

	conv, err := s.store.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, sessionID, conv)
	return conv, nil
}

// persist writes conv to the store, then refreshes the cache. When either
// write fails the cached snapshot is dropped so the next load reads the
// store.
func (s *Service) persist(ctx context.Context, sessionID string, conv *domain.Conversation) error {
	if err := s.store.ReplaceConversation(ctx, sessionID, conv); err != nil {
		s.cacheDrop(ctx, sessionID)
		return fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}
	s.cachePut(ctx, sessionID, conv)
	return nil
}

func (s *Service) cachePut(ctx context.Context, sessionID string, conv *domain.Conversation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, sessionID, conv); err != nil {
		log.Printf("WARN: session cache write failed for %s: %v", sessionID, err)
		s.cacheDrop(ctx, sessionID)
	}
}

func (s *Service) cacheDrop(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		log.Printf("WARN: session cache invalidation failed for %s: %v", sessionID, err)
	}
}

// Send appends a user turn to the session and generates the reply. With a
// non-nil emit the reply is streamed. The stored conversation only changes
// when generation succeeds; on failure or cancellation it is left exactly
// as before the user turn.
func (s *Service) Send(ctx context.Context, sessionID string, req SendRequest, emit protocol.ChunkCallback) (*protocol.ChatCompletionResponse, error) {
	userMsg, err := domain.NewMessage(domain.RoleUser, req.Content)
	if err != nil {
		return nil, err
	}

	var resp *protocol.ChatCompletionResponse
	err = s.withSession(ctx, sessionID, func(st *sessionState) error {
		if err := s.admit(ctx, req.Model, req.MaxTokens, emit != nil, st.conv.Len()+1); err != nil {
			return err
		}

		work := st.conv.Clone()
		work.Append(userMsg)
		s.trim(ctx, sessionID, work)

		opts := llm.Options{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
		out, err := s.complete(ctx, sessionID, s.model(req.Model), work, opts, emit)
		if err != nil {
			return err
		}

		reply, err := domain.NewMessage(domain.RoleAssistant, out.Choices[0].Message.Content)
		if err != nil {
			return err
		}
		work.Append(reply)
		if err := s.persist(context.WithoutCancel(ctx), sessionID, work); err != nil {
			return err
		}
		st.conv = work
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Messages returns a copy of the session's conversation.
func (s *Service) Messages(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := s.withSession(ctx, sessionID, func(st *sessionState) error {
		conv = st.conv.Clone()
		return nil
	})
	return conv, err
}

// SetSystem sets or prepends the session's system prompt.
func (s *Service) SetSystem(ctx context.Context, sessionID, text string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := s.withSession(ctx, sessionID, func(st *sessionState) error {
		work := st.conv.Clone()
		if err := work.SetOrPrependSystemPrompt(text); err != nil {
			return err
		}
		if err := s.persist(ctx, sessionID, work); err != nil {
			return err
		}
		st.conv = work
		conv = work.Clone()
		s.logEvent(ctx, sessionID, domain.EventTypeSystemPromptSet, map[string]int{"length": len(text)})
		return nil
	})
	return conv, err
}

// Clear drops every message but a leading system prompt.
func (s *Service) Clear(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := s.withSession(ctx, sessionID, func(st *sessionState) error {
		work := st.conv.Clone()
		before := work.Len()
		work.ClearKeepSystem()
		if err := s.persist(ctx, sessionID, work); err != nil {
			return err
		}
		st.conv = work
		conv = work.Clone()
		s.logEvent(ctx, sessionID, domain.EventTypeCleared, domain.ContextTrimmedPayload{
			Dropped:   before - work.Len(),
			Remaining: work.Len(),
		})
		return nil
	})
	return conv, err
}

// ChatFilePath is where a session is exported to and imported from.
func (s *Service) ChatFilePath(sessionID string) string {
	return filepath.Join(s.config.ChatDir, sessionID+".json")
}

// Export saves the session's conversation to its chat file and returns the
// path.
func (s *Service) Export(ctx context.Context, sessionID string) (string, error) {
	path := s.ChatFilePath(sessionID)
	err := s.withSession(ctx, sessionID, func(st *sessionState) error {
		if err := os.MkdirAll(s.config.ChatDir, 0o700); err != nil {
			return fmt.Errorf("failed to create chat dir: %w", err)
		}
		if err := chatfile.Save(path, st.conv); err != nil {
			return err
		}
		s.logEvent(ctx, sessionID, domain.EventTypeExported, map[string]interface{}{
			"path":     path,
			"messages": st.conv.Len(),
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Import replaces the session's conversation with its chat file.
func (s *Service) Import(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	path := s.ChatFilePath(sessionID)
	loaded, err := chatfile.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no chat file for %s", domain.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}

	var conv *domain.Conversation
	err = s.withSession(ctx, sessionID, func(st *sessionState) error {
		if err := s.persist(ctx, sessionID, loaded); err != nil {
			return err
		}
		st.conv = loaded
		conv = loaded.Clone()
		s.logEvent(ctx, sessionID, domain.EventTypeImported, map[string]interface{}{
			"path":     path,
			"messages": loaded.Len(),
		})
		return nil
	})
	return conv, err
}

// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// Conversation operations
	GetConversation(ctx context.Context, sessionID string) (*domain.Conversation, error)
	ReplaceConversation(ctx context.Context, sessionID string, conv *domain.Conversation) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, sessionID string, filter EventFilter) ([]domain.Event, error)

	// Lifecycle
	Close() error
}

// ConversationCache holds conversation snapshots in front of a Store.
type ConversationCache interface {
	// Get returns nil (and no error) on a miss.
	Get(ctx context.Context, sessionID string) (*domain.Conversation, error)
	Set(ctx context.Context, sessionID string, conv *domain.Conversation) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// EventFilter provides filtering options for events.
type EventFilter struct {
	AfterTs int64
	Types   []string
	Limit   int
}

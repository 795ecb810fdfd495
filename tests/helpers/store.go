// Package helpers builds fixtures shared by package tests.
package helpers

import (
	"context"
	"testing"

	"github.com/xiaot623/gogo/chatd/internal/domain"
	store "github.com/xiaot623/gogo/chatd/internal/repository"
)

// NewTestSQLiteStore opens an in-memory store that is closed when the test
// ends.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("closing test store: %v", err)
		}
	})
	return s
}

// SeedSession stores a session holding msgs, as a previous process would
// have left it.
func SeedSession(t *testing.T, s store.Store, sessionID string, msgs ...domain.Message) *domain.Conversation {
	t.Helper()

	ctx := context.Background()
	if _, err := s.GetOrCreateSession(ctx, sessionID); err != nil {
		t.Fatalf("failed to create session %s: %v", sessionID, err)
	}
	conv := domain.NewConversation(msgs...)
	if err := s.ReplaceConversation(ctx, sessionID, conv); err != nil {
		t.Fatalf("failed to seed session %s: %v", sessionID, err)
	}
	return conv
}

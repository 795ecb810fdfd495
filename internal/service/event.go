package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/repository"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, sessionID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:   "evt_" + uuid.New().String()[:8],
		SessionID: sessionID,
		Ts:        time.Now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// logEvent records an event and only logs a failure. Session events are
// skipped for stateless requests.
func (s *Service) logEvent(ctx context.Context, sessionID string, eventType domain.EventType, payload interface{}) {
	if sessionID == "" {
		return
	}
	// The request context may already be cancelled when a call fails.
	if err := s.recordEvent(context.WithoutCancel(ctx), sessionID, eventType, payload); err != nil {
		log.Printf("WARN: failed to record %s event: %v", eventType, err)
	}
}

// Events returns the event log of a session.
func (s *Service) Events(ctx context.Context, sessionID string, filter store.EventFilter) ([]domain.Event, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, sessionID, filter)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

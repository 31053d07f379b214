// Package chat orchestrates the conversational pipeline: durable
// conversation history, manual slash commands, and the confidence
// routed send/confirm flow.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

// ErrPersistence marks history writes that failed. The orchestrator
// treats these as fatal for the turn: no reply without a stored turn.
var ErrPersistence = errors.New("conversation persistence")

const maxAutoTitleLen = 100

// ConversationService owns conversation and message durability.
type ConversationService struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (s ConversationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EnsureConversation resolves an existing conversation for the user or
// starts a new one when id is blank.
func (s ConversationService) EnsureConversation(ctx context.Context, userID, id string) (domain.Conversation, error) {
	if id != "" {
		return s.Repo.GetConversation(ctx, userID, id)
	}
	now := s.now().UTC().Format(time.RFC3339)
	c := domain.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.InsertConversation(ctx, c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return c, nil
}

// Append stores one turn and bumps the conversation timestamp.
func (s ConversationService) Append(ctx context.Context, conversationID, role, content string, generatedCommand *string, confidence *float64) (domain.Message, error) {
	now := s.now().UTC().Format(time.RFC3339)
	m := domain.Message{
		ID:               uuid.New().String(),
		ConversationID:   conversationID,
		Role:             role,
		Content:          content,
		GeneratedCommand: generatedCommand,
		ConfidenceScore:  confidence,
		Timestamp:        now,
	}
	if err := s.Repo.InsertMessage(ctx, m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := s.Repo.TouchConversation(ctx, conversationID, now); err != nil {
		return m, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return m, nil
}

// LoadRecent returns the newest messages in chronological order for
// interpreter context.
func (s ConversationService) LoadRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.Repo.RecentMessages(ctx, conversationID, limit)
}

// AutoTitle derives the conversation title from its first user message.
// The repo write is conditional on the title being unset, so repeated
// calls are no-ops.
func (s ConversationService) AutoTitle(ctx context.Context, conversationID string) error {
	first, err := s.Repo.FirstUserMessage(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	title := first.Content
	if len(title) > maxAutoTitleLen {
		title = title[:maxAutoTitleLen]
	}
	_, err = s.Repo.SetConversationTitle(ctx, conversationID, title, s.now().UTC().Format(time.RFC3339))
	return err
}

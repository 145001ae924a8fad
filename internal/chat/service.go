package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"converse/infrastructure"
)

type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func (s *Service) CreateConversation(ctx context.Context, creatorID string, input CreateConversationInput) (*Conversation, error) {
	convType := ConversationType(input.Type)
	if convType != ConversationDirect && convType != ConversationGroup {
		return nil, infrastructure.ErrInvalidInput
	}
	if len(input.ParticipantIDs) == 0 {
		return nil, infrastructure.ErrInvalidInput
	}
	if convType == ConversationDirect && len(input.ParticipantIDs) != 1 {
		return nil, fmt.Errorf("%w: direct conversations must have exactly one other participant", infrastructure.ErrInvalidInput)
	}

	// The creator is always a participant, and duplicates collapse.
	seen := map[string]bool{creatorID: true}
	participants := []string{creatorID}
	for _, id := range input.ParticipantIDs {
		if !seen[id] {
			seen[id] = true
			participants = append(participants, id)
		}
	}

	conv := &Conversation{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Type:      convType,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateConversation(ctx, conv, participants); err != nil {
		return nil, err
	}
	return s.repo.GetConversation(ctx, conv.ID)
}

func (s *Service) ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	return s.repo.ListConversations(ctx, userID)
}

// GetMessages returns a page of conversation history and, as a side
// effect, marks every message the caller has not authored as read.
// The bulk transition runs after the page is fetched so the returned
// statuses reflect what the caller actually saw at fetch time.
func (s *Service) GetMessages(ctx context.Context, conversationID, userID string, limit int, before time.Time) ([]*Message, error) {
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, infrastructure.ErrNotAuthorized
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	messages, err := s.repo.ListMessages(ctx, conversationID, limit, before)
	if err != nil {
		return nil, err
	}

	if n, err := s.repo.MarkConversationRead(ctx, conversationID, userID); err != nil {
		s.log.Warn("bulk mark-read failed",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
			zap.Error(err))
	} else if n > 0 {
		s.log.Debug("marked messages read on fetch",
			zap.String("conversation_id", conversationID),
			zap.Int64("count", n))
	}
	return messages, nil
}

func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return infrastructure.ErrNotAuthorized
	}
	return s.repo.DeleteConversation(ctx, conversationID)
}

func (s *Service) AddParticipant(ctx context.Context, conversationID, userID, newParticipantID string) (*Conversation, error) {
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, infrastructure.ErrNotAuthorized
	}
	if err := s.repo.AddParticipant(ctx, conversationID, newParticipantID); err != nil {
		return nil, err
	}
	return s.repo.GetConversation(ctx, conversationID)
}

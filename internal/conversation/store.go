package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/whatsay/whatsay-bot/internal/models"
	"github.com/whatsay/whatsay-bot/internal/storage"
	"go.uber.org/zap"
)

// Store is the append-only history of completed exchanges per user. Records
// are immutable once appended; a storage fault is reported as a recoverable
// error and never tears down the session.
type Store struct {
	storage storage.ConversationStorage
	logger  *zap.Logger
}

func NewStore(storage storage.ConversationStorage, logger *zap.Logger) *Store {
	return &Store{
		storage: storage,
		logger:  logger,
	}
}

// Append saves a completed exchange with a fresh record ID.
func (s *Store) Append(ctx context.Context, userID int64, message string, replies []string, tone models.Tone, language models.ReplyLanguage) error {
	conv := &models.Conversation{
		ID:       uuid.New().String(),
		UserID:   userID,
		Message:  message,
		Replies:  append([]string(nil), replies...),
		Tone:     tone,
		Language: language,
	}

	if err := s.storage.SaveConversation(ctx, conv); err != nil {
		return fmt.Errorf("failed to append conversation: %w", err)
	}

	s.logger.Debug("Conversation appended",
		zap.Int64("user_id", userID),
		zap.String("conversation_id", conv.ID))
	return nil
}

// Recent returns up to limit records, most recent first.
func (s *Store) Recent(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	conversations, err := s.storage.RecentConversations(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	return conversations, nil
}

// IsEmpty reports whether the user has no stored conversations.
func (s *Store) IsEmpty(ctx context.Context, userID int64) (bool, error) {
	has, err := s.storage.HasConversations(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check conversations: %w", err)
	}
	return !has, nil
}

// Stats summarizes the user's usage for the credits view.
func (s *Store) Stats(ctx context.Context, userID int64) (*models.UserStats, error) {
	stats, err := s.storage.UserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}
	return stats, nil
}

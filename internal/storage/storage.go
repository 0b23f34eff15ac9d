package storage

import (
	"context"
	"errors"
	"time"

	"github.com/whatsay/whatsay-bot/internal/models"
)

var (
	// ErrNotFound is returned when a requested user does not exist
	ErrNotFound = errors.New("not found")
	// ErrNoCredits is returned by DebitCredit when no spendable credit remains
	ErrNoCredits = errors.New("no credits available")
)

type Storage interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserLanguage(ctx context.Context, userID int64, language string) error

	// Embed CreditStorage and ConversationStorage interfaces
	CreditStorage
	ConversationStorage

	Close() error
}

type CreditStorage interface {
	AddCreditGrant(ctx context.Context, grant *models.CreditGrant) error
	CreditGrants(ctx context.Context, userID int64) ([]models.CreditGrant, error)

	// DebitCredit atomically decrements one credit from the user's grants,
	// consuming the grant with the earliest expiry first and non-expiring
	// grants last. Grants past their expiry at now are skipped. Returns
	// ErrNoCredits when nothing is spendable. Implementations must be safe
	// against concurrent calls for the same user: compare-and-decrement,
	// never read-then-write.
	DebitCredit(ctx context.Context, userID int64, now time.Time) error
}

type ConversationStorage interface {
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	RecentConversations(ctx context.Context, userID int64, limit int) ([]models.Conversation, error)
	HasConversations(ctx context.Context, userID int64) (bool, error)
	UserStats(ctx context.Context, userID int64) (*models.UserStats, error)
}

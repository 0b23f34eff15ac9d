package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/whatsay/whatsay-bot/internal/models"
)

type MemoryStorage struct {
	mu            sync.RWMutex
	users         map[int64]*models.User
	grants        map[int64][]*models.CreditGrant
	conversations map[int64][]*models.Conversation
	nextGrantID   int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:         make(map[int64]*models.User),
		grants:        make(map[int64][]*models.CreditGrant),
		conversations: make(map[int64][]*models.Conversation),
		nextGrantID:   1,
	}
}

func (s *MemoryStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *MemoryStorage) UpdateUserLanguage(ctx context.Context, userID int64, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrNotFound
	}
	user.Language = language
	return nil
}

func (s *MemoryStorage) AddCreditGrant(ctx context.Context, grant *models.CreditGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant.ID = s.nextGrantID
	s.nextGrantID++
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now()
	}
	copied := *grant
	s.grants[grant.UserID] = append(s.grants[grant.UserID], &copied)
	return nil
}

func (s *MemoryStorage) CreditGrants(ctx context.Context, userID int64) ([]models.CreditGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grants := make([]models.CreditGrant, 0, len(s.grants[userID]))
	for _, g := range s.grants[userID] {
		grants = append(grants, *g)
	}
	return grants, nil
}

func (s *MemoryStorage) DebitCredit(ctx context.Context, userID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Spendable grants, expiring-first so free credits go before purchased
	candidates := make([]*models.CreditGrant, 0, len(s.grants[userID]))
	for _, g := range s.grants[userID] {
		if g.Remaining > 0 && !g.Expired(now) {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		return ErrNoCredits
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].ExpiresAt, candidates[j].ExpiresAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	candidates[0].Remaining--
	return nil
}

func (s *MemoryStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	copied := *conv
	copied.Replies = append([]string(nil), conv.Replies...)
	s.conversations[conv.UserID] = append(s.conversations[conv.UserID], &copied)
	return nil
}

func (s *MemoryStorage) RecentConversations(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.conversations[userID]
	result := make([]models.Conversation, 0, limit)
	for i := len(stored) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, *stored[i])
	}
	return result, nil
}

func (s *MemoryStorage) HasConversations(ctx context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.conversations[userID]) > 0, nil
}

func (s *MemoryStorage) UserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := &models.UserStats{}
	days := make(map[string]struct{})
	for _, conv := range s.conversations[userID] {
		stats.TotalUsed++
		if !conv.CreatedAt.Before(monthStart) {
			stats.UsedThisMonth++
		}
		days[conv.CreatedAt.Format("2006-01-02")] = struct{}{}
	}
	stats.DaysActive = len(days)
	return stats, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

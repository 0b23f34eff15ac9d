package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whatsay/whatsay-bot/internal/models"
)

func TestGetUserNotFound(t *testing.T) {
	store := NewMemoryStorage()

	_, err := store.GetUser(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAndGetUser(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	user := &models.User{ID: 1, DisplayName: "sam", Language: "en"}
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "sam", got.DisplayName)
	assert.Equal(t, "en", got.Language)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUpdateUserLanguage(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{ID: 1, Language: "en"}))
	require.NoError(t, store.UpdateUserLanguage(ctx, 1, "nl"))

	got, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "nl", got.Language)

	assert.ErrorIs(t, store.UpdateUserLanguage(ctx, 99, "nl"), ErrNotFound)
}

func TestDebitCreditOrdering(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	soon := now.Add(time.Hour)
	later := now.Add(48 * time.Hour)

	// Purchased grant added first, then two expiring grants
	require.NoError(t, store.AddCreditGrant(ctx, &models.CreditGrant{UserID: 1, Remaining: 1}))
	require.NoError(t, store.AddCreditGrant(ctx, &models.CreditGrant{UserID: 1, Remaining: 1, ExpiresAt: &later}))
	require.NoError(t, store.AddCreditGrant(ctx, &models.CreditGrant{UserID: 1, Remaining: 1, ExpiresAt: &soon}))

	// Earliest-expiring grant is consumed first, non-expiring last
	require.NoError(t, store.DebitCredit(ctx, 1, now))
	grants, err := store.CreditGrants(ctx, 1)
	require.NoError(t, err)
	remainingByExpiry := map[string]int{}
	for _, g := range grants {
		switch {
		case g.ExpiresAt == nil:
			remainingByExpiry["none"] = g.Remaining
		case g.ExpiresAt.Equal(soon):
			remainingByExpiry["soon"] = g.Remaining
		case g.ExpiresAt.Equal(later):
			remainingByExpiry["later"] = g.Remaining
		}
	}
	assert.Equal(t, 0, remainingByExpiry["soon"])
	assert.Equal(t, 1, remainingByExpiry["later"])
	assert.Equal(t, 1, remainingByExpiry["none"])

	require.NoError(t, store.DebitCredit(ctx, 1, now))
	require.NoError(t, store.DebitCredit(ctx, 1, now))
	assert.ErrorIs(t, store.DebitCredit(ctx, 1, now), ErrNoCredits)
}

func TestDebitCreditSkipsExpired(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	require.NoError(t, store.AddCreditGrant(ctx, &models.CreditGrant{UserID: 1, Remaining: 12, ExpiresAt: &past}))

	assert.ErrorIs(t, store.DebitCredit(ctx, 1, now), ErrNoCredits)
}

func TestDebitCreditConcurrent(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	future := now.Add(time.Hour)
	require.NoError(t, store.AddCreditGrant(ctx, &models.CreditGrant{UserID: 1, Remaining: 5, ExpiresAt: &future}))

	const attempts = 20
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.DebitCredit(ctx, 1, now)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrNoCredits)
		}
	}
	assert.Equal(t, 5, succeeded, "no double-spend: successes match available credits")
}

func TestUserStatsEmpty(t *testing.T) {
	store := NewMemoryStorage()

	stats, err := store.UserStats(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalUsed)
	assert.Zero(t, stats.DaysActive)
}

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whatsay/whatsay-bot/internal/conversation"
	"github.com/whatsay/whatsay-bot/internal/credits"
	"github.com/whatsay/whatsay-bot/internal/generator"
	"github.com/whatsay/whatsay-bot/internal/models"
	"github.com/whatsay/whatsay-bot/internal/storage"
	"go.uber.org/zap"
)

var threeReplies = []string{"Hello", "Hey there", "Sup"}

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	lastReq  generator.Request
	generate func(ctx context.Context, req generator.Request) ([]string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req generator.Request) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	fn := f.generate
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return threeReplies, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenerator) request() generator.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fixture struct {
	manager *Manager
	store   *storage.MemoryStorage
	ledger  *credits.Ledger
	history *conversation.Store
	gen     *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemoryStorage()
	logger := zap.NewNop()
	ledger := credits.NewLedger(store, logger)
	history := conversation.NewStore(store, logger)
	gen := &fakeGenerator{}

	return &fixture{
		manager: NewManager(ledger, history, gen, logger),
		store:   store,
		ledger:  ledger,
		history: history,
		gen:     gen,
	}
}

func (f *fixture) grantCredits(t *testing.T, userID int64, amount int) {
	t.Helper()
	expiresAt := time.Now().Add(time.Hour)
	require.NoError(t, f.store.AddCreditGrant(context.Background(), &models.CreditGrant{
		UserID:    userID,
		Remaining: amount,
		ExpiresAt: &expiresAt,
	}))
}

func (f *fixture) balance(t *testing.T, userID int64) models.Balance {
	t.Helper()
	balance, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func TestBeginRefusedWithoutCredits(t *testing.T) {
	f := newFixture(t)

	err := f.manager.Begin(context.Background(), 1, "hello")

	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)
	assert.Equal(t, StateIdle, f.manager.State(1))
}

func TestFullFlowDebitsOnceAndAppendsOnce(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 3)
	ctx := context.Background()

	require.NoError(t, f.manager.Begin(ctx, 1, "are we still on for tonight?"))
	assert.Equal(t, StateAwaitingTone, f.manager.State(1))

	assert.True(t, f.manager.SelectTone(1, models.ToneCasual))
	assert.Equal(t, StateAwaitingLanguage, f.manager.State(1))

	assert.True(t, f.manager.SelectLanguage(1, models.LangEnglish))

	result, err := f.manager.Generate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, threeReplies, result.Replies)
	assert.Equal(t, models.ToneCasual, result.Tone)
	assert.Equal(t, models.LangEnglish, result.Language)
	assert.Equal(t, "are we still on for tonight?", result.Message)

	// Exactly one credit debited
	assert.Equal(t, 2, f.balance(t, 1).Total)

	// Exactly one record with exactly 3 replies appended
	recent, err := f.history.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Len(t, recent[0].Replies, 3)
	assert.Equal(t, "are we still on for tonight?", recent[0].Message)
}

func TestStaleToneSelectionIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 1)

	// No session at all
	assert.False(t, f.manager.SelectTone(1, models.ToneCasual))
	assert.Equal(t, StateIdle, f.manager.State(1))

	// Session past the tone step
	require.NoError(t, f.manager.Begin(context.Background(), 1, "hi"))
	require.True(t, f.manager.SelectTone(1, models.ToneCasual))
	assert.False(t, f.manager.SelectTone(1, models.ToneFlirty), "duplicate tone press must be ignored")
	assert.Equal(t, StateAwaitingLanguage, f.manager.State(1))
}

func TestInvalidSelectionsRejected(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 1)

	require.NoError(t, f.manager.Begin(context.Background(), 1, "hi"))
	assert.False(t, f.manager.SelectTone(1, models.Tone("grumpy")))
	assert.Equal(t, StateAwaitingTone, f.manager.State(1))
}

func TestGenerationFailureLeavesCreditsAndHistoryUntouched(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 2)
	ctx := context.Background()

	f.gen.generate = func(ctx context.Context, req generator.Request) ([]string, error) {
		return nil, generator.ErrGenerationFailed
	}

	require.NoError(t, f.manager.Begin(ctx, 1, "hi"))
	require.True(t, f.manager.SelectTone(1, models.ToneProfessional))
	require.True(t, f.manager.SelectLanguage(1, models.LangSpanish))

	_, err := f.manager.Generate(ctx, 1)
	assert.ErrorIs(t, err, generator.ErrGenerationFailed)

	assert.Equal(t, 2, f.balance(t, 1).Total)
	empty, err := f.history.IsEmpty(ctx, 1)
	require.NoError(t, err)
	assert.True(t, empty)

	// Selections survive the failure so a retry is one action away
	f.gen.generate = nil
	result, err := f.manager.Generate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ToneProfessional, result.Tone)
	assert.Equal(t, models.LangSpanish, result.Language)
}

func TestMoreOptionsRegeneratesWithSameSelections(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 5)
	ctx := context.Background()

	require.NoError(t, f.manager.Begin(ctx, 1, "hi"))
	require.True(t, f.manager.SelectTone(1, models.ToneFlirty))
	require.True(t, f.manager.SelectLanguage(1, models.LangDutch))

	first, err := f.manager.Generate(ctx, 1)
	require.NoError(t, err)

	second, err := f.manager.Generate(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, first.Message, second.Message)
	assert.Equal(t, first.Tone, second.Tone)
	assert.Equal(t, first.Language, second.Language)
	assert.Equal(t, 2, f.gen.callCount())
	assert.Equal(t, 3, f.balance(t, 1).Total, "each generation costs one credit")
}

func TestEventsDroppedWhileGenerating(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 5)
	ctx := context.Background()

	release := make(chan struct{})
	f.gen.generate = func(ctx context.Context, req generator.Request) ([]string, error) {
		<-release
		return threeReplies, nil
	}

	require.NoError(t, f.manager.Begin(ctx, 1, "hi"))
	require.True(t, f.manager.SelectTone(1, models.ToneCasual))
	require.True(t, f.manager.SelectLanguage(1, models.LangEnglish))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.manager.Generate(ctx, 1)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		return f.manager.State(1) == StateGenerating
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.manager.Begin(ctx, 1, "second message"), ErrBusy)
	_, err := f.manager.Generate(ctx, 1)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	<-done

	assert.Equal(t, 1, f.gen.callCount())
	assert.Equal(t, 4, f.balance(t, 1).Total)
}

func TestNewMessageDroppedBetweenLanguageAndGeneration(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 5)
	ctx := context.Background()

	require.NoError(t, f.manager.Begin(ctx, 1, "original"))
	require.True(t, f.manager.SelectTone(1, models.ToneCasual))
	require.True(t, f.manager.SelectLanguage(1, models.LangEnglish))
	assert.Equal(t, StateReady, f.manager.State(1))

	// A message landing after the language pick but before generation
	// starts must not replace the session
	assert.ErrorIs(t, f.manager.Begin(ctx, 1, "interloper"), ErrBusy)

	result, err := f.manager.Generate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "original", result.Message)
}

func TestIdleSessionsEvicted(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 1)
	f.grantCredits(t, 2, 1)
	ctx := context.Background()

	// User 1 abandons mid-flow; user 2 is about to generate
	require.NoError(t, f.manager.Begin(ctx, 1, "abandoned"))
	require.NoError(t, f.manager.Begin(ctx, 2, "active"))
	require.True(t, f.manager.SelectTone(2, models.ToneCasual))
	require.True(t, f.manager.SelectLanguage(2, models.LangEnglish))

	f.manager.evictIdle(time.Now().Add(sessionTTL + time.Minute))

	assert.Equal(t, StateIdle, f.manager.State(1))
	assert.False(t, f.manager.SelectTone(1, models.ToneCasual))

	// The ready session survives however old it is
	assert.Equal(t, StateReady, f.manager.State(2))
	result, err := f.manager.Generate(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "active", result.Message)
}

func TestEvictionSparesRecentSessions(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 1)

	require.NoError(t, f.manager.Begin(context.Background(), 1, "hi"))

	f.manager.evictIdle(time.Now().Add(sessionTTL / 2))

	assert.Equal(t, StateAwaitingTone, f.manager.State(1))
}

func TestResetClearsSelectionsFromAnyState(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 1)

	require.NoError(t, f.manager.Begin(context.Background(), 1, "hi"))
	require.True(t, f.manager.SelectTone(1, models.ToneCasual))

	f.manager.Reset(1)

	assert.Equal(t, StateIdle, f.manager.State(1))
	assert.False(t, f.manager.SelectLanguage(1, models.LangEnglish))
	_, err := f.manager.Generate(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestHistorySnapshotFrozenAtMessageReceipt(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 5)
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three", "four", "five", "six"} {
		require.NoError(t, f.history.Append(ctx, 1, msg, threeReplies, models.ToneCasual, models.LangEnglish))
	}

	require.NoError(t, f.manager.Begin(ctx, 1, "hi"))

	// Arrives after the snapshot; must not leak into the in-flight request
	require.NoError(t, f.history.Append(ctx, 1, "late", threeReplies, models.ToneCasual, models.LangEnglish))

	require.True(t, f.manager.SelectTone(1, models.ToneCasual))
	require.True(t, f.manager.SelectLanguage(1, models.LangEnglish))
	_, err := f.manager.Generate(ctx, 1)
	require.NoError(t, err)

	req := f.gen.request()
	require.Len(t, req.History, 5, "snapshot holds the 5 most recent records")
	assert.Equal(t, "six", req.History[0].Message)
	for _, conv := range req.History {
		assert.NotEqual(t, "late", conv.Message)
	}
}

func TestBalanceDrainedDuringGenerationStillDelivers(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 1)
	ctx := context.Background()

	f.gen.generate = func(ctx context.Context, req generator.Request) ([]string, error) {
		// A concurrent spend empties the account mid-flight
		require.NoError(t, f.ledger.DebitOne(ctx, 1))
		return threeReplies, nil
	}

	require.NoError(t, f.manager.Begin(ctx, 1, "hi"))
	require.True(t, f.manager.SelectTone(1, models.ToneCasual))
	require.True(t, f.manager.SelectLanguage(1, models.LangEnglish))

	result, err := f.manager.Generate(ctx, 1)
	require.NoError(t, err, "replies are delivered uncharged when the balance races to zero")
	assert.Equal(t, threeReplies, result.Replies)

	recent, err := f.history.Recent(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSessionsAreIndependentPerUser(t *testing.T) {
	f := newFixture(t)
	f.grantCredits(t, 1, 1)
	f.grantCredits(t, 2, 1)
	ctx := context.Background()

	require.NoError(t, f.manager.Begin(ctx, 1, "first user"))
	require.NoError(t, f.manager.Begin(ctx, 2, "second user"))

	require.True(t, f.manager.SelectTone(1, models.ToneCasual))
	assert.Equal(t, StateAwaitingLanguage, f.manager.State(1))
	assert.Equal(t, StateAwaitingTone, f.manager.State(2))
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/whatsay/whatsay-bot/internal/conversation"
	"github.com/whatsay/whatsay-bot/internal/credits"
	"github.com/whatsay/whatsay-bot/internal/generator"
	"github.com/whatsay/whatsay-bot/internal/metrics"
	"github.com/whatsay/whatsay-bot/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrBusy is returned for an inbound event while the user's generation
	// is still in flight. The transport drops such events silently.
	ErrBusy = errors.New("generation in flight")
	// ErrNoSession is returned when an action needs a session that does not exist
	ErrNoSession = errors.New("no active session")
	// ErrNotReady is returned when generation is requested before message,
	// tone and language have all been collected
	ErrNotReady = errors.New("session selections incomplete")
)

// State of a user's session
type State int

const (
	StateIdle State = iota
	StateAwaitingTone
	StateAwaitingLanguage
	StateReady
	StateGenerating
)

const (
	// historyDepth is how many prior exchanges are snapshotted at message receipt
	historyDepth = 5
	// sessionTTL is how long an untouched session is retained
	sessionTTL = 30 * time.Minute
	// cleanupInterval is how often idle sessions are evicted
	cleanupInterval = 5 * time.Minute
)

// Generator produces reply candidates for a request. Satisfied by
// *generator.Generator; tests substitute a fake.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) ([]string, error)
}

// session holds one user's transient selections. The history snapshot is
// captured at message receipt and stays frozen for the session so a new
// inbound message cannot corrupt an in-flight generation.
type session struct {
	state          State
	pendingMessage string
	tone           models.Tone
	language       models.ReplyLanguage
	history        []models.Conversation
	lastActivity   time.Time
}

func (s *session) ready() bool {
	return s.pendingMessage != "" && s.tone.Valid() && s.language.Valid()
}

// busy reports whether the session must not be replaced or re-entered:
// either a generation is in flight, or a language was just selected and
// the generation it triggers has not started yet.
func (s *session) busy() bool {
	return s.state == StateReady || s.state == StateGenerating
}

// Result is one successful generation outcome
type Result struct {
	Message  string
	Tone     models.Tone
	Language models.ReplyLanguage
	Replies  []string
}

// Manager drives the per-user flow: Idle -> AwaitingTone -> AwaitingLanguage
// -> Generating -> Idle. Sessions are independent per user; the manager
// mutex guards only the map and the synchronous state transitions, never a
// network or storage call.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*session

	ledger    *credits.Ledger
	store     *conversation.Store
	generator Generator
	logger    *zap.Logger
}

func NewManager(ledger *credits.Ledger, store *conversation.Store, gen Generator, logger *zap.Logger) *Manager {
	m := &Manager{
		sessions:  make(map[int64]*session),
		ledger:    ledger,
		store:     store,
		generator: gen,
		logger:    logger,
	}

	go m.cleanup()

	return m
}

// Begin starts a session for an incoming message. The credit gate is checked
// here, once: a user with no spendable credits is refused with
// credits.ErrInsufficientCredits and no session is created. A user whose
// generation is still in flight gets ErrBusy.
func (m *Manager) Begin(ctx context.Context, userID int64, message string) error {
	if m.isBusy(userID) {
		return ErrBusy
	}

	balance, err := m.ledger.Balance(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check balance: %w", err)
	}
	if balance.Total <= 0 {
		metrics.RecordCreditRefusal()
		return credits.ErrInsufficientCredits
	}

	history, err := m.store.Recent(ctx, userID, historyDepth)
	if err != nil {
		// Recoverable: generate without context rather than refuse
		m.logger.Warn("Failed to snapshot history, continuing without context",
			zap.Error(err),
			zap.Int64("user_id", userID))
		history = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[userID]; ok && existing.busy() {
		return ErrBusy
	}
	m.sessions[userID] = &session{
		state:          StateAwaitingTone,
		pendingMessage: message,
		history:        history,
		lastActivity:   time.Now(),
	}
	metrics.SetActiveSessions(len(m.sessions))
	return nil
}

// SelectTone records the tone choice. A selection arriving in any state
// other than AwaitingTone is a stale button press and is ignored: no state
// change, no error.
func (m *Manager) SelectTone(userID int64, tone models.Tone) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok || s.state != StateAwaitingTone || !tone.Valid() {
		return false
	}
	s.tone = tone
	s.state = StateAwaitingLanguage
	s.lastActivity = time.Now()
	return true
}

// SelectLanguage records the reply language choice. Stale selections are
// ignored the same way as SelectTone.
func (m *Manager) SelectLanguage(userID int64, language models.ReplyLanguage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok || s.state != StateAwaitingLanguage || !language.Valid() {
		return false
	}
	s.language = language
	// Ready, not Idle: the transport calls Generate next, and a message
	// racing in before it must not replace the session
	s.state = StateReady
	s.lastActivity = time.Now()
	return true
}

// Generate runs one generation attempt with the session's frozen selections.
// On success one credit is debited and the exchange is appended to history
// as a single logical unit. On failure nothing is charged or recorded and
// the selections stay in place, so a retry is one action away. Selections
// are also retained after success for "more options" regeneration.
//
// Credits are deliberately not re-checked here: the gate ran at message
// receipt, and a balance drained during the external call only means this
// one generation is delivered uncharged (logged below).
func (m *Manager) Generate(ctx context.Context, userID int64) (*Result, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	if s.state == StateGenerating {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	if !s.ready() {
		m.mu.Unlock()
		return nil, ErrNotReady
	}
	s.state = StateGenerating
	req := generator.Request{
		Message:  s.pendingMessage,
		Tone:     s.tone,
		Language: s.language,
		History:  append([]models.Conversation(nil), s.history...),
	}
	m.mu.Unlock()

	start := time.Now()
	replies, err := m.generator.Generate(ctx, req)

	m.mu.Lock()
	s.state = StateIdle
	s.lastActivity = time.Now()
	m.mu.Unlock()

	if err != nil {
		metrics.RecordGeneration("error", time.Since(start))
		return nil, err
	}
	metrics.RecordGeneration("success", time.Since(start))

	if err := m.ledger.DebitOne(ctx, userID); err != nil {
		if errors.Is(err, credits.ErrInsufficientCredits) {
			// Balance raced to zero after the gate passed; deliver uncharged
			m.logger.Warn("Balance depleted during generation, delivering uncharged",
				zap.Int64("user_id", userID))
		} else {
			m.logger.Error("Failed to debit credit",
				zap.Error(err),
				zap.Int64("user_id", userID))
		}
	} else {
		metrics.RecordCreditDebited()
	}

	if err := m.store.Append(ctx, userID, req.Message, replies, req.Tone, req.Language); err != nil {
		// Recoverable, but future generations lose this context
		m.logger.Error("Failed to append conversation history",
			zap.Error(err),
			zap.Int64("user_id", userID))
	}

	return &Result{
		Message:  req.Message,
		Tone:     req.Tone,
		Language: req.Language,
		Replies:  replies,
	}, nil
}

// Reset drops the user's session unconditionally from any state.
func (m *Manager) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	metrics.SetActiveSessions(len(m.sessions))
}

// State reports the user's current session state.
func (m *Manager) State(userID int64) State {
	return m.stateOf(userID)
}

func (m *Manager) stateOf(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s.state
	}
	return StateIdle
}

func (m *Manager) isBusy(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s.busy()
	}
	return false
}

func (m *Manager) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.evictIdle(time.Now())
	}
}

// evictIdle drops sessions untouched for longer than sessionTTL. Busy
// sessions are never evicted, whatever their age.
func (m *Manager) evictIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for userID, s := range m.sessions {
		if s.busy() {
			continue
		}
		if now.Sub(s.lastActivity) > sessionTTL {
			delete(m.sessions, userID)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Debug("Evicted idle sessions", zap.Int("count", evicted))
	}
	metrics.SetActiveSessions(len(m.sessions))
}

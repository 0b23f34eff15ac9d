package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whatsay/whatsay-bot/internal/models"
	"github.com/whatsay/whatsay-bot/internal/storage"
	"go.uber.org/zap"
)

// ErrInsufficientCredits is returned when a debit is attempted against an
// account with no spendable credits.
var ErrInsufficientCredits = errors.New("insufficient credits")

const (
	// SignupCredits is the free grant every new user receives once
	SignupCredits = 12
	// SignupExpiry is how long the signup grant stays spendable
	SignupExpiry = 7 * 24 * time.Hour
)

// Ledger tracks per-user credit balances on top of storage. Expiry is
// evaluated at read time; expired grants are never zeroed eagerly.
type Ledger struct {
	storage storage.CreditStorage
	logger  *zap.Logger
	now     func() time.Time
}

func NewLedger(storage storage.CreditStorage, logger *zap.Logger) *Ledger {
	return &Ledger{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Balance computes the user's spendable credits at call time. Free credits
// are grant remainders with a future expiry, purchased credits never expire.
func (l *Ledger) Balance(ctx context.Context, userID int64) (models.Balance, error) {
	grants, err := l.storage.CreditGrants(ctx, userID)
	if err != nil {
		return models.Balance{}, fmt.Errorf("failed to load credit grants: %w", err)
	}

	now := l.now()
	var balance models.Balance
	for _, g := range grants {
		if g.Remaining <= 0 || g.Expired(now) {
			continue
		}
		if g.ExpiresAt != nil {
			balance.Free += g.Remaining
		} else {
			balance.Purchased += g.Remaining
		}
	}
	balance.Total = balance.Free + balance.Purchased
	return balance, nil
}

// DebitOne spends exactly one credit, free credits before purchased.
// Returns ErrInsufficientCredits when the account is empty. The decrement
// is delegated to storage as a compare-and-decrement so two concurrent
// debits against a single remaining credit cannot both succeed.
func (l *Ledger) DebitOne(ctx context.Context, userID int64) error {
	err := l.storage.DebitCredit(ctx, userID, l.now())
	if errors.Is(err, storage.ErrNoCredits) {
		return ErrInsufficientCredits
	}
	if err != nil {
		return fmt.Errorf("failed to debit credit: %w", err)
	}

	l.logger.Debug("Credit debited", zap.Int64("user_id", userID))
	return nil
}

// GrantSignup gives the one-time free credit batch to a newly created user.
func (l *Ledger) GrantSignup(ctx context.Context, userID int64) error {
	expiresAt := l.now().Add(SignupExpiry)
	grant := &models.CreditGrant{
		UserID:    userID,
		Remaining: SignupCredits,
		ExpiresAt: &expiresAt,
	}
	if err := l.storage.AddCreditGrant(ctx, grant); err != nil {
		return fmt.Errorf("failed to grant signup credits: %w", err)
	}

	l.logger.Info("Signup credits granted",
		zap.Int64("user_id", userID),
		zap.Int("credits", SignupCredits),
		zap.Time("expires_at", expiresAt))
	return nil
}

// GrantPurchased adds non-expiring credits, e.g. after a completed purchase.
func (l *Ledger) GrantPurchased(ctx context.Context, userID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("invalid grant amount: %d", amount)
	}
	grant := &models.CreditGrant{
		UserID:    userID,
		Remaining: amount,
	}
	if err := l.storage.AddCreditGrant(ctx, grant); err != nil {
		return fmt.Errorf("failed to grant purchased credits: %w", err)
	}

	l.logger.Info("Purchased credits granted",
		zap.Int64("user_id", userID),
		zap.Int("credits", amount))
	return nil
}

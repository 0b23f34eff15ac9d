package models

import "time"

// User represents a bot user with their interface preferences
type User struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreditGrant is a batch of credits given to a user. Free grants carry an
// expiry timestamp, purchased grants never expire (ExpiresAt == nil).
type CreditGrant struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Remaining int        `json:"remaining"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the grant is past its expiry at the given instant.
// Grants without an expiry never expire.
func (g CreditGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Balance is a point-in-time view of a user's spendable credits
type Balance struct {
	Total     int `json:"total"`
	Free      int `json:"free"`
	Purchased int `json:"purchased"`
}

// Conversation is one completed exchange: the message the user received and
// the three suggested replies generated for it. Immutable once saved.
type Conversation struct {
	ID        string        `json:"id"`
	UserID    int64         `json:"user_id"`
	Message   string        `json:"message"`
	Replies   []string      `json:"replies"`
	Tone      Tone          `json:"tone"`
	Language  ReplyLanguage `json:"language"`
	CreatedAt time.Time     `json:"created_at"`
}

// UserStats summarizes a user's generation usage for the credits view
type UserStats struct {
	TotalUsed     int `json:"total_used"`
	UsedThisMonth int `json:"used_this_month"`
	DaysActive    int `json:"days_active"`
}

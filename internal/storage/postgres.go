package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/whatsay/whatsay-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, display_name, language, created_at
		FROM users
		WHERE id = $1`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.DisplayName,
		&user.Language,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}

	return user, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, display_name, language)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, user.ID, user.DisplayName, user.Language).
		Scan(&user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Already existed; creation is idempotent
		return nil
	}
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}

	return nil
}

func (s *PostgresStorage) UpdateUserLanguage(ctx context.Context, userID int64, language string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET language = $1 WHERE id = $2`, language, userID)
	if err != nil {
		return fmt.Errorf("error updating user language: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStorage) AddCreditGrant(ctx context.Context, grant *models.CreditGrant) error {
	query := `
		INSERT INTO credit_grants (user_id, remaining, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, grant.UserID, grant.Remaining, grant.ExpiresAt).
		Scan(&grant.ID, &grant.CreatedAt)
	if err != nil {
		return fmt.Errorf("error adding credit grant: %w", err)
	}

	return nil
}

func (s *PostgresStorage) CreditGrants(ctx context.Context, userID int64) ([]models.CreditGrant, error) {
	query := `
		SELECT id, user_id, remaining, expires_at, created_at
		FROM credit_grants
		WHERE user_id = $1
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying credit grants: %w", err)
	}
	defer rows.Close()

	var grants []models.CreditGrant
	for rows.Next() {
		var g models.CreditGrant
		if err := rows.Scan(&g.ID, &g.UserID, &g.Remaining, &g.ExpiresAt, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning credit grant: %w", err)
		}
		grants = append(grants, g)
	}

	return grants, rows.Err()
}

// DebitCredit decrements one credit in a single statement so concurrent
// debits for the same user serialize on the row lock. Expiring grants are
// consumed before non-expiring ones.
func (s *PostgresStorage) DebitCredit(ctx context.Context, userID int64, now time.Time) error {
	query := `
		UPDATE credit_grants
		SET remaining = remaining - 1
		WHERE id = (
			SELECT id FROM credit_grants
			WHERE user_id = $1
			  AND remaining > 0
			  AND (expires_at IS NULL OR expires_at > $2)
			ORDER BY expires_at ASC NULLS LAST, id ASC
			LIMIT 1
			FOR UPDATE
		)`

	result, err := s.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return fmt.Errorf("error debiting credit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoCredits
	}

	return nil
}

func (s *PostgresStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, message, replies, tone, language)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		conv.ID,
		conv.UserID,
		conv.Message,
		pq.Array(conv.Replies),
		string(conv.Tone),
		string(conv.Language),
	).Scan(&conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving conversation: %w", err)
	}

	return nil
}

func (s *PostgresStorage) RecentConversations(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	query := `
		SELECT id, user_id, message, replies, tone, language, created_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(
			&conv.ID,
			&conv.UserID,
			&conv.Message,
			pq.Array(&conv.Replies),
			&conv.Tone,
			&conv.Language,
			&conv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

func (s *PostgresStorage) HasConversations(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE user_id = $1)`, userID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking conversations: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) UserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('month', now())),
			COUNT(DISTINCT created_at::date)
		FROM conversations
		WHERE user_id = $1`

	stats := &models.UserStats{}
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&stats.TotalUsed, &stats.UsedThisMonth, &stats.DaysActive)
	if err != nil {
		return nil, fmt.Errorf("error querying user stats: %w", err)
	}

	return stats, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

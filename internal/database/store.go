package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrUserNotFound is returned when no user matches the requested Telegram ID.
var ErrUserNotFound = errors.New("user not found")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertUser registers a Telegram user or refreshes their tag. It returns the stored record.
	UpsertUser(ctx context.Context, uid int64, tag string) (*User, error)

	// GetUser returns the user with Telegram ID uid or ErrUserNotFound.
	GetUser(ctx context.Context, uid int64) (*User, error)

	// ListUsers returns every known user ordered by creation time.
	ListUsers(ctx context.Context) ([]User, error)

	// IncrementMessages counts a successful model exchange for uid.
	IncrementMessages(ctx context.Context, uid int64) error

	// IncrementWarns counts a failed model exchange for uid.
	IncrementWarns(ctx context.Context, uid int64) error

	// SaveHistoryEntry appends a prompt/reply exchange.
	SaveHistoryEntry(ctx context.Context, entry *HistoryEntry) error

	// GetRecentHistory returns the latest limit exchanges in chronological order.
	GetRecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error)

	// DeleteAllHistory removes every stored exchange.
	DeleteAllHistory(ctx context.Context) error

	// PruneHistory keeps only the newest keep exchanges and returns how many were removed.
	PruneHistory(ctx context.Context, keep int) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store backed by a connected sqlx.DB.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser creates the user with a fresh UUID when missing. An existing user
// is only written when the tag changed.
func (s *sqlxStore) UpsertUser(ctx context.Context, uid int64, tag string) (*User, error) {
	if uid == 0 {
		return nil, fmt.Errorf("user uid cannot be zero")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var user User
	err = tx.GetContext(ctx, &user, `SELECT id, uid, created_at, updated_at, warns, banned, messages, telegram_user_tag
        FROM users WHERE uid = ?`, uid)

	now := s.now()
	switch {
	case errors.Is(err, sql.ErrNoRows):
		user = User{
			ID:              uuid.NewString(),
			UID:             uid,
			CreatedAt:       now,
			UpdatedAt:       now,
			TelegramUserTag: tag,
		}
		query := `
            INSERT INTO users (id, uid, created_at, updated_at, warns, banned, messages, telegram_user_tag)
            VALUES (:id, :uid, :created_at, :updated_at, :warns, :banned, :messages, :telegram_user_tag);
        `
		if _, err := tx.NamedExecContext(ctx, query, &user); err != nil {
			s.logger.ErrorContext(ctx, "Error inserting user", "uid", uid, "error", err)
			return nil, fmt.Errorf("failed to insert user %d: %w", uid, err)
		}
		s.logger.InfoContext(ctx, "Registered new user", "uid", uid, "id", user.ID, "tag", tag)
	case err != nil:
		s.logger.ErrorContext(ctx, "Error fetching user", "uid", uid, "error", err)
		return nil, fmt.Errorf("failed to fetch user %d: %w", uid, err)
	case user.TelegramUserTag != tag:
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET telegram_user_tag = ?, updated_at = ? WHERE uid = ?`, tag, now, uid); err != nil {
			s.logger.ErrorContext(ctx, "Error updating user tag", "uid", uid, "error", err)
			return nil, fmt.Errorf("failed to update user %d tag: %w", uid, err)
		}
		s.logger.DebugContext(ctx, "Updated user tag", "uid", uid, "old_tag", user.TelegramUserTag, "new_tag", tag)
		user.TelegramUserTag = tag
		user.UpdatedAt = now
	default:
		// Nothing changed, nothing to write.
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	return &user, nil
}

func (s *sqlxStore) GetUser(ctx context.Context, uid int64) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `SELECT id, uid, created_at, updated_at, warns, banned, messages, telegram_user_tag
        FROM users WHERE uid = ?`, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", uid, err)
	}
	return &user, nil
}

func (s *sqlxStore) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	err := s.db.SelectContext(ctx, &users, `SELECT id, uid, created_at, updated_at, warns, banned, messages, telegram_user_tag
        FROM users ORDER BY created_at ASC, uid ASC`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing users", "error", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *sqlxStore) IncrementMessages(ctx context.Context, uid int64) error {
	return s.incrementColumn(ctx, "messages", uid)
}

func (s *sqlxStore) IncrementWarns(ctx context.Context, uid int64) error {
	return s.incrementColumn(ctx, "warns", uid)
}

// incrementColumn bumps one of the counter columns. column is never user input.
func (s *sqlxStore) incrementColumn(ctx context.Context, column string, uid int64) error {
	query := fmt.Sprintf(`UPDATE users SET %s = %s + 1, updated_at = ? WHERE uid = ?`, column, column)
	result, err := s.db.ExecContext(ctx, query, s.now(), uid)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error incrementing user counter", "column", column, "uid", uid, "error", err)
		return fmt.Errorf("failed to increment %s for user %d: %w", column, uid, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *sqlxStore) SaveHistoryEntry(ctx context.Context, entry *HistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("cannot save nil history entry")
	}
	if entry.UserPrompt == "" || entry.ModelReply == "" {
		return fmt.Errorf("history entry must have both prompt and reply")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	result, err := s.db.NamedExecContext(ctx, `
        INSERT INTO prompt_history (chat_id, user_prompt, model_reply, created_at)
        VALUES (:chat_id, :user_prompt, :model_reply, :created_at);
    `, entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving history entry", "chat_id", entry.ChatID, "error", err)
		return fmt.Errorf("failed to save history entry: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // ids are positive
		entry.ID = uint(id)
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving history entry", "error", err)
	}
	return nil
}

func (s *sqlxStore) GetRecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	} else if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var entries []HistoryEntry
	query := `
        SELECT id, chat_id, user_prompt, model_reply, created_at FROM (
            SELECT id, chat_id, user_prompt, model_reply, created_at
            FROM prompt_history
            ORDER BY id DESC
            LIMIT ?
        ) ORDER BY id ASC;
    `
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching prompt history", "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to fetch prompt history: %w", err)
	}
	return entries, nil
}

func (s *sqlxStore) DeleteAllHistory(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM prompt_history`)
	if err != nil {
		return fmt.Errorf("failed to delete prompt history: %w", err)
	}
	affected, _ := result.RowsAffected()
	s.logger.InfoContext(ctx, "Deleted prompt history", "rows_affected", affected)
	return nil
}

func (s *sqlxStore) PruneHistory(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep cannot be negative")
	}
	result, err := s.db.ExecContext(ctx, `
        DELETE FROM prompt_history
        WHERE id NOT IN (SELECT id FROM prompt_history ORDER BY id DESC LIMIT ?);
    `, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune prompt history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned row count: %w", err)
	}
	return affected, nil
}

// RunSQLMaintenance executes VACUUM. SQLite requires it to run outside a transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
			return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
		}
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed")
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/models"
)

const userColumns = `user_id, username, points, is_blocked, created_at, last_login_at`

// UpsertUser records a login. Existing accounts keep their balance and only
// refresh username and last_login_at.
func UpsertUser(ctx context.Context, db sqlx.QueryerContext, userID, username string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO login_users (user_id, username, created_at, last_login_at)
		VALUES ($1, NULLIF($2, ''), NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET username = COALESCE(EXCLUDED.username, login_users.username),
		    last_login_at = NOW()
		RETURNING ` + userColumns

	if err := sqlx.GetContext(ctx, db, user, query, userID, username); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db sqlx.QueryerContext, userID string) (*models.User, error) {
	user := &models.User{}

	err := sqlx.GetContext(ctx, db, user,
		`SELECT `+userColumns+` FROM login_users WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// lockUser takes the row lock that serializes balance changes for one user.
func lockUser(ctx context.Context, tx *sqlx.Tx, userID string) (*models.User, error) {
	user := &models.User{}

	err := tx.GetContext(ctx, user,
		`SELECT `+userColumns+` FROM login_users WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}

	return user, nil
}

func SetUserBlocked(ctx context.Context, db sqlx.ExecerContext, userID string, blocked bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE login_users SET is_blocked = $2 WHERE user_id = $1`,
		userID, blocked)
	if err != nil {
		return fmt.Errorf("set user blocked: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrUserNotFound
	}

	return nil
}

func ListUsers(ctx context.Context, db *sqlx.DB, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	if err := db.GetContext(ctx, &total, `SELECT COUNT(*) FROM login_users`); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	var users []models.User
	err := db.SelectContext(ctx, &users,
		`SELECT `+userColumns+`
		 FROM login_users
		 ORDER BY created_at DESC, user_id
		 LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return newOffsetPage(users, total, page, pageSize), nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/models"
)

// DebitPointsTx subtracts amount from the balance only if it covers it.
func DebitPointsTx(ctx context.Context, tx *sqlx.Tx, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, database.ErrInvalidPoints
	}

	var balance int64
	err := tx.QueryRowContext(ctx,
		`UPDATE login_users
		 SET points = points - $2::bigint
		 WHERE user_id = $1
		   AND points >= $2::bigint
		 RETURNING points`,
		userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, missingOr(ctx, tx, userID, database.ErrInsufficientPoints)
		}
		return 0, fmt.Errorf("debit points: %w", err)
	}

	return balance, nil
}

// CreditPointsTx adds amount unless the balance would overflow int64.
func CreditPointsTx(ctx context.Context, tx *sqlx.Tx, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, database.ErrInvalidPoints
	}

	var balance int64
	err := tx.QueryRowContext(ctx,
		`UPDATE login_users
		 SET points = points + $2::bigint
		 WHERE user_id = $1
		   AND points <= $3::bigint - $2::bigint
		 RETURNING points`,
		userID, amount, int64(math.MaxInt64)).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, missingOr(ctx, tx, userID, database.ErrPointsOverflow)
		}
		return 0, fmt.Errorf("credit points: %w", err)
	}

	return balance, nil
}

func DebitPoints(ctx context.Context, db *sqlx.DB, userID string, amount int64) (int64, error) {
	var balance int64

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var err error
		balance, err = DebitPointsTx(ctx, tx, userID, amount)
		return err
	})

	return balance, err
}

func CreditPoints(ctx context.Context, db *sqlx.DB, userID string, amount int64) (int64, error) {
	var balance int64

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var err error
		balance, err = CreditPointsTx(ctx, tx, userID, amount)
		return err
	})

	return balance, err
}

// missingOr tells a missing user apart from a failed balance guard.
func missingOr(ctx context.Context, tx *sqlx.Tx, userID string, guardErr error) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM login_users WHERE user_id = $1)",
		userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check user exists: %w", err)
	}
	if !exists {
		return database.ErrUserNotFound
	}
	return guardErr
}

// CheckinDate is the calendar day of now in loc, as stored in daily_checkins.
func CheckinDate(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}

// Checkin awards reward once per user per calendar day in loc.
func Checkin(ctx context.Context, db *sqlx.DB, userID string, now time.Time, loc *time.Location, reward int64) (*models.Checkin, int64, error) {
	if reward <= 0 {
		return nil, 0, database.ErrInvalidPoints
	}

	var checkin *models.Checkin
	var balance int64

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		user, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.IsBlocked {
			return database.ErrUserBlocked
		}

		checkin = &models.Checkin{}
		err = tx.GetContext(ctx, checkin,
			`INSERT INTO daily_checkins (user_id, checkin_date, reward, created_at)
			 VALUES ($1, $2::date, $3, NOW())
			 ON CONFLICT (user_id, checkin_date) DO NOTHING
			 RETURNING id, user_id, checkin_date, reward, created_at`,
			userID, CheckinDate(now, loc), reward)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrAlreadyCheckedInToday
			}
			return fmt.Errorf("insert checkin: %w", err)
		}

		balance, err = CreditPointsTx(ctx, tx, userID, reward)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return checkin, balance, nil
}

func ListCheckins(ctx context.Context, db sqlx.QueryerContext, userID string, limit int) ([]models.Checkin, error) {
	var checkins []models.Checkin

	err := sqlx.SelectContext(ctx, db, &checkins,
		`SELECT id, user_id, checkin_date, reward, created_at
		 FROM daily_checkins
		 WHERE user_id = $1
		 ORDER BY checkin_date DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}

	return checkins, nil
}

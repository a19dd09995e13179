package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/models"
)

type ExpireResult struct {
	OrderID  string
	Released int64
	// Expired is set when the order itself moved to expired. Orphan
	// reservations without an order row only release cards.
	Expired bool
	Skipped bool
}

// StaleReservations lists orders holding unused cards reserved before cutoff,
// and pending orders created before cutoff that never reserved anything.
func StaleReservations(ctx context.Context, db sqlx.QueryerContext, cutoff time.Time, limit int) ([]string, error) {
	var orderIDs []string

	query := `
		SELECT order_id
		FROM (
			SELECT reserved_order_id AS order_id, MIN(reserved_at) AS since
			FROM cards
			WHERE is_used = FALSE
			  AND reserved_order_id IS NOT NULL
			  AND reserved_at < $1
			GROUP BY reserved_order_id
			UNION ALL
			SELECT order_id, created_at
			FROM orders
			WHERE status = $3
			  AND created_at < $1
		) stale
		GROUP BY order_id
		ORDER BY MIN(since)
		LIMIT $2`

	if err := sqlx.SelectContext(ctx, db, &orderIDs, query, cutoff, limit, models.OrderStatusPending); err != nil {
		return nil, fmt.Errorf("list stale reservations: %w", err)
	}

	return orderIDs, nil
}

// DatabaseNow reads the database clock. Reservation timestamps are stamped
// with it, so cutoffs are computed from it too.
func DatabaseNow(ctx context.Context, db sqlx.QueryerContext) (time.Time, error) {
	var now time.Time
	if err := sqlx.GetContext(ctx, db, &now, `SELECT NOW()`); err != nil {
		return time.Time{}, fmt.Errorf("read database clock: %w", err)
	}
	return now, nil
}

// ExpireReservationTx re-checks the order under its row lock before releasing
// anything. An order that got paid after the scan, or whose stale cards were
// already released, is skipped. A pending order older than cutoff expires
// without releasing anything.
func ExpireReservationTx(ctx context.Context, tx *sqlx.Tx, orderID string, cutoff time.Time) (ExpireResult, error) {
	res := ExpireResult{OrderID: orderID}

	var (
		status    models.OrderStatus
		createdAt time.Time
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, created_at FROM orders WHERE order_id = $1 FOR UPDATE`,
		orderID).Scan(&status, &createdAt)
	orphan := errors.Is(err, sql.ErrNoRows)
	if err != nil && !orphan {
		return res, fmt.Errorf("lock order: %w", err)
	}

	if !orphan && status.HasCard() {
		res.Skipped = true
		return res, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE cards
		 SET reserved_order_id = NULL,
		     reserved_at = NULL
		 WHERE reserved_order_id = $1
		   AND is_used = FALSE
		   AND reserved_at < $2`,
		orderID, cutoff)
	if err != nil {
		return res, fmt.Errorf("release stale cards: %w", err)
	}

	res.Released, err = result.RowsAffected()
	if err != nil {
		return res, fmt.Errorf("get rows affected: %w", err)
	}
	abandoned := !orphan && status == models.OrderStatusPending && createdAt.Before(cutoff)
	if res.Released == 0 && !abandoned {
		res.Skipped = true
		return res, nil
	}
	if orphan || !models.CanTransition(status, models.OrderStatusExpired) {
		return res, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $2,
		     current_payment_id = NULL
		 WHERE order_id = $1
		   AND status = $3`,
		orderID, models.OrderStatusExpired, status)
	if err != nil {
		return res, fmt.Errorf("expire order: %w", err)
	}
	res.Expired = true

	return res, nil
}

func ExpireReservation(ctx context.Context, db *sqlx.DB, orderID string, cutoff time.Time) (ExpireResult, error) {
	var res ExpireResult

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var err error
		res, err = ExpireReservationTx(ctx, tx, orderID, cutoff)
		return err
	})

	return res, err
}

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

const refundColumns = `id, order_id, user_id, username, reason, status, admin_username, admin_note,
	created_at, updated_at, processed_at`

type RequestRefundRequest struct {
	OrderID string
	// UserID, when set, must own the order.
	UserID   *string
	Username *string
	Reason   *string
}

type RefundDecision struct {
	RequestID     int64
	AdminUsername string
	AdminNote     *string
}

// RefundOutcome carries what an approval changed so callers can report it.
type RefundOutcome struct {
	Request        *models.RefundRequest `json:"request"`
	Order          *models.Order         `json:"order"`
	CardsRestocked int64                 `json:"cards_restocked"`
	PointsCredited int64                 `json:"points_credited"`
}

func RequestRefund(ctx context.Context, db *sqlx.DB, req RequestRefundRequest) (*models.RefundRequest, error) {
	var refund *models.RefundRequest

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		order, err := lockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if req.UserID != nil && (order.UserID == nil || *order.UserID != *req.UserID) {
			return database.ErrOrderNotFound
		}
		if !models.CanTransition(order.Status, models.OrderStatusRefunded) {
			return database.ErrInvalidOrderState
		}

		var pending bool
		err = tx.GetContext(ctx, &pending,
			`SELECT EXISTS(SELECT 1 FROM refund_requests WHERE order_id = $1 AND status = $2)`,
			order.ID, models.RefundStatusPending)
		if err != nil {
			return fmt.Errorf("check pending refund: %w", err)
		}
		if pending {
			return database.ErrDuplicateRequest
		}

		refund = &models.RefundRequest{}
		err = tx.GetContext(ctx, refund,
			`INSERT INTO refund_requests (order_id, user_id, username, reason, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			 RETURNING `+refundColumns,
			order.ID, order.UserID, req.Username, req.Reason, models.RefundStatusPending)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return database.ErrDuplicateRequest
			}
			return fmt.Errorf("create refund request: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return refund, nil
}

func lockRefund(ctx context.Context, tx *sqlx.Tx, requestID int64) (*models.RefundRequest, error) {
	refund := &models.RefundRequest{}

	err := tx.GetContext(ctx, refund,
		`SELECT `+refundColumns+` FROM refund_requests WHERE id = $1 FOR UPDATE`, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrRefundNotFound
		}
		return nil, fmt.Errorf("lock refund request: %w", err)
	}

	if refund.Status.Terminal() {
		return nil, database.ErrRefundNotPending
	}

	return refund, nil
}

func decideRefundTx(ctx context.Context, tx *sqlx.Tx, d RefundDecision, status models.RefundStatus) (*models.RefundRequest, error) {
	refund := &models.RefundRequest{}

	err := tx.GetContext(ctx, refund,
		`UPDATE refund_requests
		 SET status = $2,
		     admin_username = $3,
		     admin_note = $4,
		     processed_at = NOW(),
		     updated_at = NOW()
		 WHERE id = $1
		   AND status = $5
		 RETURNING `+refundColumns,
		d.RequestID, status, d.AdminUsername, d.AdminNote, models.RefundStatusPending)
	if err != nil {
		return nil, fmt.Errorf("update refund request: %w", err)
	}

	return refund, nil
}

// ApproveRefund reverses the order: its cards go back on sale, redeemed
// points are credited back and the order becomes refunded. Nothing is
// changed unless every step succeeds.
func ApproveRefund(ctx context.Context, db *sqlx.DB, d RefundDecision) (*RefundOutcome, error) {
	var outcome *RefundOutcome

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		outcome = &RefundOutcome{}

		refund, err := lockRefund(ctx, tx, d.RequestID)
		if err != nil {
			return err
		}

		current, err := lockOrder(ctx, tx, refund.OrderID)
		if err != nil {
			return err
		}
		if !models.CanTransition(current.Status, models.OrderStatusRefunded) {
			return database.ErrInvalidOrderState
		}

		outcome.CardsRestocked, err = RestockCardsTx(ctx, tx, current.ID)
		if err != nil {
			return err
		}

		if current.PointsUsed > 0 && current.UserID != nil {
			if _, err := CreditPointsTx(ctx, tx, *current.UserID, current.PointsUsed); err != nil {
				return err
			}
			outcome.PointsCredited = current.PointsUsed
		}

		outcome.Order = &models.Order{}
		err = tx.GetContext(ctx, outcome.Order,
			`UPDATE orders
			 SET status = $2
			 WHERE order_id = $1
			   AND status = $3
			 RETURNING `+orderColumns,
			current.ID, models.OrderStatusRefunded, current.Status)
		if err != nil {
			return fmt.Errorf("mark refunded: %w", err)
		}

		outcome.Request, err = decideRefundTx(ctx, tx, d, models.RefundStatusApproved)
		return err
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

func RejectRefund(ctx context.Context, db *sqlx.DB, d RefundDecision) (*models.RefundRequest, error) {
	var refund *models.RefundRequest

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		if _, err := lockRefund(ctx, tx, d.RequestID); err != nil {
			return err
		}

		var err error
		refund, err = decideRefundTx(ctx, tx, d, models.RefundStatusRejected)
		return err
	})
	if err != nil {
		return nil, err
	}

	return refund, nil
}

func GetRefund(ctx context.Context, db sqlx.QueryerContext, requestID int64) (*models.RefundRequest, error) {
	refund := &models.RefundRequest{}

	err := sqlx.GetContext(ctx, db, refund,
		`SELECT `+refundColumns+` FROM refund_requests WHERE id = $1`, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrRefundNotFound
		}
		return nil, fmt.Errorf("get refund request: %w", err)
	}

	return refund, nil
}

// ListRefunds pages through requests, newest first. An empty status lists all.
func ListRefunds(ctx context.Context, db *sqlx.DB, status models.RefundStatus, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	err := db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM refund_requests WHERE $1 = '' OR status = $1`, status)
	if err != nil {
		return nil, fmt.Errorf("count refund requests: %w", err)
	}

	var refunds []models.RefundRequest
	err = db.SelectContext(ctx, &refunds,
		`SELECT `+refundColumns+`
		 FROM refund_requests
		 WHERE $1 = '' OR status = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list refund requests: %w", err)
	}

	return newOffsetPage(refunds, total, page, pageSize), nil
}

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

const reviewColumns = `id, product_id, order_id, user_id, username, rating, comment, created_at`

type CreateReviewRequest struct {
	OrderID  string
	UserID   string
	Username string
	Rating   int
	Comment  *string
}

// CreateReview records the buyer's single rating for a fulfilled order.
func CreateReview(ctx context.Context, db sqlx.QueryerContext, req CreateReviewRequest) (*models.Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, database.ErrInvalidRating
	}

	order, err := GetOrder(ctx, db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || *order.UserID != req.UserID {
		return nil, database.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPaid && order.Status != models.OrderStatusDelivered {
		return nil, database.ErrInvalidOrderState
	}

	review := &models.Review{}
	err = sqlx.GetContext(ctx, db, review,
		`INSERT INTO reviews (product_id, order_id, user_id, username, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (order_id) DO NOTHING
		 RETURNING `+reviewColumns,
		order.ProductID, order.ID, req.UserID, req.Username, req.Rating, req.Comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrDuplicateReview
		}
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	return review, nil
}

func ListReviews(ctx context.Context, db sqlx.QueryerContext, productID string, limit int) ([]models.Review, error) {
	var reviews []models.Review

	err := sqlx.SelectContext(ctx, db, &reviews,
		`SELECT `+reviewColumns+`
		 FROM reviews
		 WHERE product_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		productID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	return reviews, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lithammer/shortuuid/v3"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/models"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const orderColumns = `order_id, product_id, product_name, amount, email, payee, status, trade_no,
	card_key, paid_at, delivered_at, user_id, username, points_used, quantity,
	current_payment_id, created_at`

// Orders in these states count against a product's purchase limit.
var outstandingStatuses = []models.OrderStatus{
	models.OrderStatusPending,
	models.OrderStatusReserved,
	models.OrderStatusPaid,
	models.OrderStatusDelivered,
}

type CreateOrderRequest struct {
	ProductID string
	Quantity  int
	UserID    *string
	Username  *string
	Email     *string
	Payee     *string
}

type MarkPaidRequest struct {
	OrderID string
	TradeNo string
	// PaidAmount is compared with the order amount when the gateway reports it.
	PaidAmount *decimal.Decimal
}

func CreateOrder(ctx context.Context, db *sqlx.DB, req CreateOrderRequest) (*models.Order, error) {
	if req.Quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		product, err := GetProduct(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return database.ErrProductUnavailable
		}

		if req.UserID != nil {
			user, err := lockUser(ctx, tx, *req.UserID)
			if err != nil {
				return err
			}
			if user.IsBlocked {
				return database.ErrUserBlocked
			}
		}

		if product.PurchaseLimit != nil {
			if err := checkPurchaseLimit(ctx, tx, product, req); err != nil {
				return err
			}
		}

		amount := product.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))

		order = &models.Order{}
		err = tx.GetContext(ctx, order,
			`INSERT INTO orders (order_id, product_id, product_name, amount, email, payee, status,
				user_id, username, points_used, quantity, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, NOW())
			 RETURNING `+orderColumns,
			uuid.NewString(), product.ID, product.Name, amount, req.Email, req.Payee,
			models.OrderStatusPending, req.UserID, req.Username, req.Quantity)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// checkPurchaseLimit runs under the user row lock so two concurrent orders
// from the same user cannot both slip under the limit.
func checkPurchaseLimit(ctx context.Context, tx *sqlx.Tx, product *models.Product, req CreateOrderRequest) error {
	limit := *product.PurchaseLimit
	if req.Quantity > limit {
		return database.ErrLimitExceeded
	}
	if req.UserID == nil {
		return nil
	}

	statuses := lo.Map(outstandingStatuses, func(s models.OrderStatus, _ int) string {
		return string(s)
	})

	query, args, err := sqlx.In(
		`SELECT COALESCE(SUM(quantity), 0)
		 FROM orders
		 WHERE user_id = ?
		   AND product_id = ?
		   AND status IN (?)`,
		*req.UserID, product.ID, statuses)
	if err != nil {
		return fmt.Errorf("build limit query: %w", err)
	}

	var outstanding int
	if err := tx.GetContext(ctx, &outstanding, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("sum outstanding quantity: %w", err)
	}

	if outstanding+req.Quantity > limit {
		return database.ErrLimitExceeded
	}

	return nil
}

func lockOrder(ctx context.Context, tx *sqlx.Tx, orderID string) (*models.Order, error) {
	order := &models.Order{}

	err := tx.GetContext(ctx, order,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = $1 FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

// BeginPayment reserves the order's cards and opens a payment attempt. On an
// order that already holds its cards only the attempt id is rotated.
func BeginPayment(ctx context.Context, db *sqlx.DB, orderID string) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		switch current.Status {
		case models.OrderStatusPending:
			if _, err := ReserveCardsTx(ctx, tx, current.ProductID, current.ID, current.Quantity); err != nil {
				return err
			}
		case models.OrderStatusReserved:
		default:
			return database.ErrInvalidOrderState
		}

		order = &models.Order{}
		err = tx.GetContext(ctx, order,
			`UPDATE orders
			 SET status = $2,
			     current_payment_id = $3
			 WHERE order_id = $1
			   AND status = $4
			 RETURNING `+orderColumns,
			orderID, models.OrderStatusReserved, shortuuid.New(), current.Status)
		if err != nil {
			return fmt.Errorf("begin payment: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// MarkPaid consumes the order's reserved cards and records the payment in
// one transaction. A payment for an order with no live reservation moves the
// order to failed and returns ErrNotReserved.
func MarkPaid(ctx context.Context, db *sqlx.DB, req MarkPaidRequest) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		current, err := lockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		if !models.CanTransition(current.Status, models.OrderStatusFailed) {
			return database.ErrInvalidOrderState
		}
		if req.PaidAmount != nil && !req.PaidAmount.Equal(current.Amount) {
			return database.ErrAmountMismatch
		}
		if current.Status != models.OrderStatusReserved {
			return database.ErrNotReserved
		}

		cards, err := ConsumeCardsTx(ctx, tx, current.ID)
		if err != nil {
			return err
		}

		keys := lo.Map(cards, func(c models.Card, _ int) string { return c.Key })

		order = &models.Order{}
		err = tx.GetContext(ctx, order,
			`UPDATE orders
			 SET status = $2,
			     trade_no = $3,
			     card_key = $4,
			     paid_at = NOW()
			 WHERE order_id = $1
			   AND status = $5
			 RETURNING `+orderColumns,
			current.ID, models.OrderStatusPaid, req.TradeNo, strings.Join(keys, "\n"),
			models.OrderStatusReserved)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}

		return nil
	})
	if errors.Is(err, database.ErrNotReserved) {
		if failErr := failOrder(ctx, db, req.OrderID, req.TradeNo); failErr != nil {
			return nil, fmt.Errorf("%w (mark failed: %v)", err, failErr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	return order, nil
}

// failOrder parks an order whose payment could not be matched to a
// reservation. The trade number is kept for reconciliation.
func failOrder(ctx context.Context, db *sqlx.DB, orderID, tradeNo string) error {
	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !models.CanTransition(current.Status, models.OrderStatusFailed) {
			return nil
		}

		if _, err := ReleaseCardsTx(ctx, tx, orderID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $2,
			     trade_no = $3,
			     current_payment_id = NULL
			 WHERE order_id = $1
			   AND status = $4`,
			orderID, models.OrderStatusFailed, tradeNo, current.Status)
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}

		return nil
	})
}

func MarkDelivered(ctx context.Context, db *sqlx.DB, orderID string) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !models.CanTransition(current.Status, models.OrderStatusDelivered) {
			return database.ErrInvalidOrderState
		}

		order = &models.Order{}
		err = tx.GetContext(ctx, order,
			`UPDATE orders
			 SET status = $2,
			     delivered_at = NOW()
			 WHERE order_id = $1
			   AND status = $3
			 RETURNING `+orderColumns,
			orderID, models.OrderStatusDelivered, current.Status)
		if err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// ApplyPoints redeems points against a pending order. The debit and the
// discounted amount commit together.
func ApplyPoints(ctx context.Context, db *sqlx.DB, orderID string, points, pointsPerUnit int64) (*models.Order, error) {
	if points <= 0 || pointsPerUnit <= 0 {
		return nil, database.ErrInvalidPoints
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.Status != models.OrderStatusPending || current.PointsUsed != 0 {
			return database.ErrInvalidOrderState
		}
		if current.UserID == nil {
			return database.ErrUserNotFound
		}

		discount := decimal.NewFromInt(points).Div(decimal.NewFromInt(pointsPerUnit)).Truncate(2)
		if discount.GreaterThan(current.Amount) {
			return database.ErrInvalidPoints
		}

		if _, err := DebitPointsTx(ctx, tx, *current.UserID, points); err != nil {
			return err
		}

		order = &models.Order{}
		err = tx.GetContext(ctx, order,
			`UPDATE orders
			 SET points_used = $2,
			     amount = $3
			 WHERE order_id = $1
			   AND status = $4
			   AND points_used = 0
			 RETURNING `+orderColumns,
			orderID, points, current.Amount.Sub(discount), models.OrderStatusPending)
		if err != nil {
			return fmt.Errorf("apply points: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func GetOrder(ctx context.Context, db sqlx.QueryerContext, orderID string) (*models.Order, error) {
	order := &models.Order{}

	err := sqlx.GetContext(ctx, db, order,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

func ListOrdersCursor(ctx context.Context, db sqlx.QueryerContext, userID string, cursor string, limit int) (*CursorPage, error) {
	limit = normalizeLimit(limit)

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", database.ErrInvalidCursor, err)
	}

	var orders []models.Order
	err = sqlx.SelectContext(ctx, db, &orders,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE user_id = $1
		   AND (created_at, order_id) < ($2, $3)
		 ORDER BY created_at DESC, order_id DESC
		 LIMIT $4`,
		userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      lo.Map(orders, func(o models.Order, _ int) models.Order { return o.BuyerView() }),
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

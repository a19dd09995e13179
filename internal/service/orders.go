package service

import (
	"context"
	"errors"

	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/events"
	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/store"
	"go.uber.org/zap"
)

func buyerView(o *models.Order) *models.Order {
	v := o.BuyerView()
	return &v
}

func (s *Service) transitioned(ctx context.Context, eventType string, order *models.Order) {
	s.metrics.OrdersTransitioned.WithLabelValues(string(order.Status)).Inc()
	s.publish(ctx, eventType, order.ID, events.OrderSnapshot(order))
}

func (s *Service) CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error) {
	order, err := store.CreateOrder(ctx, s.db, req)
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, events.EventOrderCreated, order)
	return buyerView(order), nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	return buyerView(order), nil
}

func (s *Service) ListOrders(ctx context.Context, userID, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListOrdersCursor(ctx, s.db, userID, cursor, limit)
}

func (s *Service) BeginPayment(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := store.BeginPayment(ctx, s.db, orderID)
	if err != nil {
		if errors.Is(err, database.ErrExhausted) {
			if o, getErr := store.GetOrder(ctx, s.db, orderID); getErr == nil {
				s.metrics.ReserveExhausted.WithLabelValues(o.ProductID).Inc()
			}
			s.logger.Info("reservation exhausted", zap.String("order_id", orderID))
		}
		return nil, err
	}

	s.transitioned(ctx, events.EventOrderReserved, order)
	return buyerView(order), nil
}

// MarkPaid handles a gateway callback. A payment that cannot be matched to
// a reservation is logged for manual reconciliation.
func (s *Service) MarkPaid(ctx context.Context, req store.MarkPaidRequest) (*models.Order, error) {
	order, err := store.MarkPaid(ctx, s.db, req)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotReserved):
			s.metrics.Reconciliation.Inc()
			s.logger.Error("payment without reservation",
				zap.String("order_id", req.OrderID),
				zap.String("trade_no", req.TradeNo),
				zap.Error(err),
			)
			s.publish(ctx, events.EventOrderPaymentFailed, req.OrderID, events.OrderPayload{
				OrderID: req.OrderID,
				Status:  models.OrderStatusFailed,
				TradeNo: req.TradeNo,
				Reason:  err.Error(),
			})
		case errors.Is(err, database.ErrAmountMismatch), errors.Is(err, database.ErrInvalidOrderState):
			s.logger.Warn("payment callback rejected",
				zap.String("order_id", req.OrderID),
				zap.String("trade_no", req.TradeNo),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.transitioned(ctx, events.EventOrderPaid, order)
	return buyerView(order), nil
}

// MarkDelivered releases the card key to the buyer.
func (s *Service) MarkDelivered(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := store.MarkDelivered(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, events.EventOrderDelivered, order)
	return buyerView(order), nil
}

func (s *Service) ApplyPoints(ctx context.Context, orderID string, points int64) (*models.Order, error) {
	order, err := store.ApplyPoints(ctx, s.db, orderID, points, s.points.PointsPerUnit)
	if err != nil {
		return nil, err
	}
	return buyerView(order), nil
}

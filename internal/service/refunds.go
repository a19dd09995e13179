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

func (s *Service) RequestRefund(ctx context.Context, req store.RequestRefundRequest) (*models.RefundRequest, error) {
	refund, err := store.RequestRefund(ctx, s.db, req)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateRequest) || errors.Is(err, database.ErrInvalidOrderState) {
			s.logger.Warn("refund request rejected", zap.String("order_id", req.OrderID), zap.Error(err))
		}
		return nil, err
	}

	s.publish(ctx, events.EventRefundRequested, refund.OrderID, events.RefundPayload{
		RequestID: refund.ID,
		OrderID:   refund.OrderID,
		Status:    refund.Status,
	})
	return refund, nil
}

func (s *Service) ApproveRefund(ctx context.Context, d store.RefundDecision) (*store.RefundOutcome, error) {
	outcome, err := store.ApproveRefund(ctx, s.db, d)
	if err != nil {
		s.logger.Warn("refund approval failed",
			zap.Int64("request_id", d.RequestID),
			zap.String("admin", d.AdminUsername),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("refund approved",
		zap.Int64("request_id", d.RequestID),
		zap.String("order_id", outcome.Order.ID),
		zap.Int64("cards_restocked", outcome.CardsRestocked),
		zap.Int64("points_credited", outcome.PointsCredited),
	)

	s.transitioned(ctx, events.EventOrderRefunded, outcome.Order)
	s.publish(ctx, events.EventRefundApproved, outcome.Order.ID, events.RefundPayload{
		RequestID:      outcome.Request.ID,
		OrderID:        outcome.Order.ID,
		Status:         outcome.Request.Status,
		Admin:          d.AdminUsername,
		CardsRestocked: outcome.CardsRestocked,
		PointsCredited: outcome.PointsCredited,
	})

	outcome.Order = buyerView(outcome.Order)
	return outcome, nil
}

func (s *Service) RejectRefund(ctx context.Context, d store.RefundDecision) (*models.RefundRequest, error) {
	refund, err := store.RejectRefund(ctx, s.db, d)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRefundRejected, refund.OrderID, events.RefundPayload{
		RequestID: refund.ID,
		OrderID:   refund.OrderID,
		Status:    refund.Status,
		Admin:     d.AdminUsername,
	})
	return refund, nil
}

func (s *Service) ListRefunds(ctx context.Context, status models.RefundStatus, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListRefunds(ctx, s.db, status, page, pageSize)
}

func (s *Service) GetRefund(ctx context.Context, requestID int64) (*models.RefundRequest, error) {
	return store.GetRefund(ctx, s.db, requestID)
}

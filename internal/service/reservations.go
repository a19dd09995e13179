package service

import (
	"context"
	"time"

	"github.com/safar/go-card-store/internal/events"
	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/store"
)

func (s *Service) StaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return store.StaleReservations(ctx, s.db, cutoff, limit)
}

func (s *Service) DatabaseNow(ctx context.Context) (time.Time, error) {
	return store.DatabaseNow(ctx, s.db)
}

// ExpireReservation releases one order's stale cards and reports the
// expiry when the order itself moved.
func (s *Service) ExpireReservation(ctx context.Context, orderID string, cutoff time.Time) (store.ExpireResult, error) {
	res, err := store.ExpireReservation(ctx, s.db, orderID, cutoff)
	if err != nil || !res.Expired {
		return res, err
	}

	s.metrics.OrdersTransitioned.WithLabelValues(string(models.OrderStatusExpired)).Inc()
	s.publish(ctx, events.EventOrderExpired, orderID, events.OrderPayload{
		OrderID: orderID,
		Status:  models.OrderStatusExpired,
	})
	return res, nil
}

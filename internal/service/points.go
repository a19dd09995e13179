package service

import (
	"context"

	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/store"
	"go.uber.org/zap"
)

type CheckinResult struct {
	Checkin *models.Checkin `json:"checkin"`
	Balance int64           `json:"balance"`
}

// Checkin grants the daily reward. The day is taken in the configured
// check-in timezone.
func (s *Service) Checkin(ctx context.Context, userID string) (*CheckinResult, error) {
	checkin, balance, err := store.Checkin(ctx, s.db, userID, s.now(), s.points.Location, s.points.CheckinReward)
	if err != nil {
		return nil, err
	}

	s.metrics.CheckinsGranted.Inc()
	s.logger.Debug("checkin granted",
		zap.String("user_id", userID),
		zap.Int64("reward", checkin.Reward),
		zap.Int64("balance", balance),
	)
	return &CheckinResult{Checkin: checkin, Balance: balance}, nil
}

func (s *Service) UpsertUser(ctx context.Context, userID, username string) (*models.User, error) {
	return store.UpsertUser(ctx, s.db, userID, username)
}

func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return store.GetUser(ctx, s.db, userID)
}

func (s *Service) SetUserBlocked(ctx context.Context, userID string, blocked bool) error {
	if err := store.SetUserBlocked(ctx, s.db, userID, blocked); err != nil {
		return err
	}

	s.logger.Info("user block updated", zap.String("user_id", userID), zap.Bool("blocked", blocked))
	return nil
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListUsers(ctx, s.db, page, pageSize)
}

// ListCheckins returns the user's most recent check-ins, newest first.
func (s *Service) ListCheckins(ctx context.Context, userID string, limit int) ([]models.Checkin, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	return store.ListCheckins(ctx, s.db, userID, limit)
}

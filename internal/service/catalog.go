package service

import (
	"context"

	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/store"
	"go.uber.org/zap"
)

func (s *Service) CreateProduct(ctx context.Context, req store.CreateProductRequest) (*models.Product, error) {
	return store.CreateProduct(ctx, s.db, req)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	return store.GetProduct(ctx, s.db, productID)
}

func (s *Service) ListProducts(ctx context.Context, page, pageSize int, activeOnly bool) (*store.OffsetPage, error) {
	return store.ListProducts(ctx, s.db, page, pageSize, activeOnly)
}

func (s *Service) SetProductActive(ctx context.Context, productID string, active bool) error {
	return store.SetProductActive(ctx, s.db, productID, active)
}

func (s *Service) AddCards(ctx context.Context, productID string, keys []string) (int, error) {
	added, err := store.AddCards(ctx, s.db, productID, keys)
	if err != nil {
		return 0, err
	}

	s.logger.Info("cards imported",
		zap.String("product_id", productID),
		zap.Int("submitted", len(keys)),
		zap.Int("added", added),
	)
	return added, nil
}

func (s *Service) Stock(ctx context.Context, productID string) (*models.CardStats, error) {
	if _, err := store.GetProduct(ctx, s.db, productID); err != nil {
		return nil, err
	}
	return store.CardStatsFor(ctx, s.db, productID)
}

func (s *Service) CreateReview(ctx context.Context, req store.CreateReviewRequest) (*models.Review, error) {
	return store.CreateReview(ctx, s.db, req)
}

func (s *Service) ListReviews(ctx context.Context, productID string, limit int) ([]models.Review, error) {
	return store.ListReviews(ctx, s.db, productID, limit)
}

// OrderCards lists the cards an order holds or consumed, keys included.
// It backs the operator view and is never exposed to buyers.
func (s *Service) OrderCards(ctx context.Context, orderID string) ([]models.Card, error) {
	if _, err := store.GetOrder(ctx, s.db, orderID); err != nil {
		return nil, err
	}
	return store.ListCardsByOrder(ctx, s.db, orderID)
}

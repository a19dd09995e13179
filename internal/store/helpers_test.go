package store_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, db *sqlx.DB, price string, cards int) *models.Product {
	t.Helper()
	ctx := context.Background()

	product, err := store.CreateProduct(ctx, db, store.CreateProductRequest{
		Name:  "Gift Card",
		Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)

	if cards > 0 {
		keys := make([]string, cards)
		for i := range keys {
			keys[i] = fmt.Sprintf("KEY-%s-%03d", product.ID[:8], i)
		}
		added, err := store.AddCards(ctx, db, product.ID, keys)
		require.NoError(t, err)
		require.Equal(t, cards, added)
	}

	return product
}

func seedUser(t *testing.T, db *sqlx.DB, id string, points int64) *models.User {
	t.Helper()
	ctx := context.Background()

	user, err := store.UpsertUser(ctx, db, id, "user-"+id)
	require.NoError(t, err)

	if points > 0 {
		_, err = store.CreditPoints(ctx, db, id, points)
		require.NoError(t, err)
		user, err = store.GetUser(ctx, db, id)
		require.NoError(t, err)
	}

	return user
}

func placeOrder(t *testing.T, db *sqlx.DB, productID string, userID *string, quantity int) *models.Order {
	t.Helper()

	order, err := store.CreateOrder(context.Background(), db, store.CreateOrderRequest{
		ProductID: productID,
		Quantity:  quantity,
		UserID:    userID,
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, order.Status)

	return order
}

func stats(t *testing.T, db *sqlx.DB, productID string) models.CardStats {
	t.Helper()

	s, err := store.CardStatsFor(context.Background(), db, productID)
	require.NoError(t, err)
	return *s
}

func ptr[T any](v T) *T {
	return &v
}

func splitKeys(joined string) []string {
	return strings.Split(joined, "\n")
}

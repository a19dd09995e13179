package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/store"
	"github.com/safar/go-card-store/internal/testdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireReservationReleasesStaleCard(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 1)
	order := placeOrder(t, db, product.ID, nil, 1)
	_, err := store.BeginPayment(ctx, db, order.ID)
	require.NoError(t, err)

	// Nothing is stale yet.
	ids, err := store.StaleReservations(ctx, db, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	cutoff := time.Now().Add(time.Minute)
	ids, err = store.StaleReservations(ctx, db, cutoff, 10)
	require.NoError(t, err)
	require.Equal(t, []string{order.ID}, ids)

	res, err := store.ExpireReservation(ctx, db, order.ID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Released)
	assert.True(t, res.Expired)
	assert.False(t, res.Skipped)

	got, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExpired, got.Status)
	assert.Nil(t, got.CurrentPaymentID)
	assert.Equal(t, models.CardStats{Free: 1}, stats(t, db, product.ID))

	// A late payment for the expired order is parked for reconciliation.
	_, err = store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: order.ID, TradeNo: "LATE"})
	require.Error(t, err)
	got, err = store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, got.Status)
}

func TestExpireReservationSkipsPaidOrder(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 1)
	order := placeOrder(t, db, product.ID, nil, 1)
	_, err := store.BeginPayment(ctx, db, order.ID)
	require.NoError(t, err)

	cutoff := time.Now().Add(time.Minute)
	ids, err := store.StaleReservations(ctx, db, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// Payment lands between the scan and the release.
	_, err = store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: order.ID, TradeNo: "T"})
	require.NoError(t, err)

	res, err := store.ExpireReservation(ctx, db, ids[0], cutoff)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Released)

	got, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Equal(t, models.CardStats{Used: 1}, stats(t, db, product.ID))
}

func TestExpireReservationWithoutOrderRow(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 1)
	_, err := store.ReserveCard(ctx, db, product.ID, "orphan")
	require.NoError(t, err)

	res, err := store.ExpireReservation(ctx, db, "orphan", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Released)
	assert.False(t, res.Expired)
	assert.Equal(t, models.CardStats{Free: 1}, stats(t, db, product.ID))
}

func TestAbandonedPendingOrdersExpireAndFreePurchaseLimit(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	limited, err := store.CreateProduct(ctx, db, store.CreateProductRequest{
		Name:          "Limited",
		Price:         decimal.NewFromInt(3),
		PurchaseLimit: ptr(2),
	})
	require.NoError(t, err)
	seedUser(t, db, "buyer", 0)

	first := placeOrder(t, db, limited.ID, ptr("buyer"), 1)
	second := placeOrder(t, db, limited.ID, ptr("buyer"), 1)

	req := store.CreateOrderRequest{ProductID: limited.ID, Quantity: 1, UserID: ptr("buyer")}
	_, err = store.CreateOrder(ctx, db, req)
	require.ErrorIs(t, err, database.ErrLimitExceeded)

	// Fresh pending orders are left alone.
	ids, err := store.StaleReservations(ctx, db, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	res, err := store.ExpireReservation(ctx, db, first.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	cutoff := time.Now().Add(time.Minute)
	ids, err = store.StaleReservations(ctx, db, cutoff, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	for _, id := range ids {
		res, err := store.ExpireReservation(ctx, db, id, cutoff)
		require.NoError(t, err)
		assert.True(t, res.Expired)
		assert.Zero(t, res.Released)

		got, err := store.GetOrder(ctx, db, id)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusExpired, got.Status)
	}

	_, err = store.CreateOrder(ctx, db, req)
	assert.NoError(t, err)
}

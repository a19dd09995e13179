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

func TestCreateOrderSnapshotsProduct(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "12.50", 3)
	user := seedUser(t, db, "u1", 0)

	order := placeOrder(t, db, product.ID, &user.ID, 2)

	assert.Equal(t, product.Name, order.ProductName)
	assert.True(t, decimal.RequireFromString("25.00").Equal(order.Amount))
	assert.Equal(t, 2, order.Quantity)
	assert.Nil(t, order.CardKey)
	assert.Nil(t, order.CurrentPaymentID)

	// Creating an order never touches stock.
	assert.Equal(t, models.CardStats{Free: 3}, stats(t, db, product.ID))

	got, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestCreateOrderValidation(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 5)
	limited, err := store.CreateProduct(ctx, db, store.CreateProductRequest{
		Name:          "Limited",
		Price:         decimal.NewFromInt(3),
		PurchaseLimit: ptr(2),
	})
	require.NoError(t, err)

	seedUser(t, db, "buyer", 0)
	seedUser(t, db, "blocked", 0)
	require.NoError(t, store.SetUserBlocked(ctx, db, "blocked", true))

	tests := []struct {
		name    string
		req     store.CreateOrderRequest
		wantErr error
	}{
		{"zero quantity", store.CreateOrderRequest{ProductID: product.ID, Quantity: 0}, database.ErrInvalidQuantity},
		{"unknown product", store.CreateOrderRequest{ProductID: "nope", Quantity: 1}, database.ErrProductNotFound},
		{"blocked user", store.CreateOrderRequest{ProductID: product.ID, Quantity: 1, UserID: ptr("blocked")}, database.ErrUserBlocked},
		{"unknown user", store.CreateOrderRequest{ProductID: product.ID, Quantity: 1, UserID: ptr("ghost")}, database.ErrUserNotFound},
		{"over limit", store.CreateOrderRequest{ProductID: limited.ID, Quantity: 3}, database.ErrLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateOrder(ctx, db, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("inactive product", func(t *testing.T) {
		require.NoError(t, store.SetProductActive(ctx, db, product.ID, false))
		defer store.SetProductActive(ctx, db, product.ID, true)

		_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{ProductID: product.ID, Quantity: 1})
		assert.ErrorIs(t, err, database.ErrProductUnavailable)
	})

	t.Run("limit counts outstanding orders", func(t *testing.T) {
		placeOrder(t, db, limited.ID, ptr("buyer"), 1)
		placeOrder(t, db, limited.ID, ptr("buyer"), 1)

		_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
			ProductID: limited.ID,
			Quantity:  1,
			UserID:    ptr("buyer"),
		})
		assert.ErrorIs(t, err, database.ErrLimitExceeded)
	})
}

// One card, two buyers: the loser gets the card once the winner is refunded.
func TestReserveSellRefundResell(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "9.99", 1)
	orderA := placeOrder(t, db, product.ID, nil, 1)
	orderB := placeOrder(t, db, product.ID, nil, 1)

	reservedA, err := store.BeginPayment(ctx, db, orderA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReserved, reservedA.Status)
	require.NotNil(t, reservedA.CurrentPaymentID)

	_, err = store.BeginPayment(ctx, db, orderB.ID)
	require.ErrorIs(t, err, database.ErrExhausted)

	b, err := store.GetOrder(ctx, db, orderB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, b.Status)

	paidA, err := store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: orderA.ID, TradeNo: "T-A"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, paidA.Status)
	require.NotNil(t, paidA.CardKey)
	assert.NotEmpty(t, *paidA.CardKey)
	assert.NotNil(t, paidA.PaidAt)
	assert.Equal(t, models.CardStats{Used: 1}, stats(t, db, product.ID))

	refund, err := store.RequestRefund(ctx, db, store.RequestRefundRequest{OrderID: orderA.ID})
	require.NoError(t, err)

	outcome, err := store.ApproveRefund(ctx, db, store.RefundDecision{RequestID: refund.ID, AdminUsername: "admin"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, outcome.Order.Status)
	assert.Equal(t, int64(1), outcome.CardsRestocked)
	assert.Equal(t, models.CardStats{Free: 1}, stats(t, db, product.ID))

	reservedB, err := store.BeginPayment(ctx, db, orderB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReserved, reservedB.Status)
}

func TestBeginPaymentRotatesAttemptID(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 2)
	order := placeOrder(t, db, product.ID, nil, 1)

	first, err := store.BeginPayment(ctx, db, order.ID)
	require.NoError(t, err)
	held, err := store.ListCardsByOrder(ctx, db, order.ID)
	require.NoError(t, err)
	require.Len(t, held, 1)

	second, err := store.BeginPayment(ctx, db, order.ID)
	require.NoError(t, err)

	assert.NotEqual(t, *first.CurrentPaymentID, *second.CurrentPaymentID)
	assert.Equal(t, models.CardStats{Free: 1, Reserved: 1}, stats(t, db, product.ID))

	// Rotating the attempt does not extend the reservation window.
	again, err := store.ListCardsByOrder(ctx, db, order.ID)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, held[0].ID, again[0].ID)
	assert.True(t, held[0].ReservedAt.Equal(*again[0].ReservedAt))
}

func TestBeginPaymentReservesQuantity(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 3)
	order := placeOrder(t, db, product.ID, nil, 2)

	_, err := store.BeginPayment(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStats{Free: 1, Reserved: 2}, stats(t, db, product.ID))

	paid, err := store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: order.ID, TradeNo: "T-1"})
	require.NoError(t, err)
	assert.Len(t, splitKeys(*paid.CardKey), 2)

	// Not enough stock for a second two-card order: nothing stays reserved.
	other := placeOrder(t, db, product.ID, nil, 2)
	_, err = store.BeginPayment(ctx, db, other.ID)
	require.ErrorIs(t, err, database.ErrExhausted)
	assert.Equal(t, models.CardStats{Free: 1, Used: 2}, stats(t, db, product.ID))
}

func TestMarkPaidWithoutReservationFails(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 1)
	order := placeOrder(t, db, product.ID, nil, 1)

	_, err := store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: order.ID, TradeNo: "T-LOST"})
	require.ErrorIs(t, err, database.ErrNotReserved)

	got, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, got.Status)
	require.NotNil(t, got.TradeNo)
	assert.Equal(t, "T-LOST", *got.TradeNo)
	assert.Nil(t, got.CardKey)
	assert.Equal(t, models.CardStats{Free: 1}, stats(t, db, product.ID))
}

func TestMarkPaidRejectsRepeatAndMismatch(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "4.00", 1)
	order := placeOrder(t, db, product.ID, nil, 1)
	_, err := store.BeginPayment(ctx, db, order.ID)
	require.NoError(t, err)

	wrong := decimal.RequireFromString("3.99")
	_, err = store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: order.ID, TradeNo: "T", PaidAmount: &wrong})
	require.ErrorIs(t, err, database.ErrAmountMismatch)

	right := decimal.RequireFromString("4")
	_, err = store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: order.ID, TradeNo: "T", PaidAmount: &right})
	require.NoError(t, err)

	_, err = store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: order.ID, TradeNo: "T"})
	assert.ErrorIs(t, err, database.ErrInvalidOrderState)
}

func TestMarkDelivered(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 1)
	order := placeOrder(t, db, product.ID, nil, 1)

	_, err := store.MarkDelivered(ctx, db, order.ID)
	require.ErrorIs(t, err, database.ErrInvalidOrderState)

	_, err = store.BeginPayment(ctx, db, order.ID)
	require.NoError(t, err)
	_, err = store.MarkPaid(ctx, db, store.MarkPaidRequest{OrderID: order.ID, TradeNo: "T"})
	require.NoError(t, err)

	delivered, err := store.MarkDelivered(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)
	assert.NotNil(t, delivered.BuyerView().CardKey)
}

func TestApplyPointsDebitsAtomically(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "10.00", 1)
	user := seedUser(t, db, "pts", 500)
	order := placeOrder(t, db, product.ID, &user.ID, 1)

	_, err := store.ApplyPoints(ctx, db, order.ID, 600, 100)
	require.ErrorIs(t, err, database.ErrInsufficientPoints)

	got, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Zero(t, got.PointsUsed)

	updated, err := store.ApplyPoints(ctx, db, order.ID, 250, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(250), updated.PointsUsed)
	assert.True(t, decimal.RequireFromString("7.50").Equal(updated.Amount))

	u, err := store.GetUser(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), u.Points)

	_, err = store.ApplyPoints(ctx, db, order.ID, 10, 100)
	assert.ErrorIs(t, err, database.ErrInvalidOrderState)
}

func TestApplyPointsCannotExceedAmount(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 1)
	user := seedUser(t, db, "rich", 10000)
	order := placeOrder(t, db, product.ID, &user.ID, 1)

	_, err := store.ApplyPoints(ctx, db, order.ID, 101, 100)
	assert.ErrorIs(t, err, database.ErrInvalidPoints)

	u, err := store.GetUser(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), u.Points)
}

func TestListOrdersCursor(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "1.00", 0)
	user := seedUser(t, db, "lister", 0)

	for i := 0; i < 5; i++ {
		placeOrder(t, db, product.ID, &user.ID, 1)
		time.Sleep(2 * time.Millisecond)
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := store.ListOrdersCursor(ctx, db, user.ID, cursor, 2)
		require.NoError(t, err)
		pages++

		for _, o := range page.Items.([]models.Order) {
			assert.False(t, seen[o.ID], "order %s returned twice", o.ID)
			seen[o.ID] = true
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)
}

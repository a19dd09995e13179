package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/store"
	"github.com/safar/go-card-store/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReserveSingleCard(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "10.00", 1)

	const callers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var reserved []*models.Card
	exhausted := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			card, err := store.ReserveCard(ctx, db, product.ID, fmt.Sprintf("order-%d", n))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				reserved = append(reserved, card)
			case assert.ErrorIs(t, err, database.ErrExhausted):
				exhausted++
			}
		}(i)
	}

	wg.Wait()

	require.Len(t, reserved, 1)
	assert.Equal(t, callers-1, exhausted)
	assert.Equal(t, models.CardReserved, reserved[0].State())
	assert.Equal(t, models.CardStats{Reserved: 1}, stats(t, db, product.ID))
}

func TestReserveTakesLowestFreeCard(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "10.00", 3)

	first, err := store.ReserveCard(ctx, db, product.ID, "order-a")
	require.NoError(t, err)
	second, err := store.ReserveCard(ctx, db, product.ID, "order-b")
	require.NoError(t, err)

	assert.Less(t, first.ID, second.ID)
	require.NotNil(t, first.ReservedOrderID)
	assert.Equal(t, "order-a", *first.ReservedOrderID)
	assert.NotNil(t, first.ReservedAt)
}

func TestConsumeNeverSucceedsTwice(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "10.00", 2)
	orderID := uuid.NewString()

	_, err := store.ReserveCard(ctx, db, product.ID, orderID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ConsumeCards(ctx, db, orderID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, database.ErrNotReserved)
	}
	assert.Equal(t, 1, successes)

	cards, err := store.ListCardsByOrder(ctx, db, orderID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, models.CardUsed, cards[0].State())
	assert.NotNil(t, cards[0].UsedAt)
}

func TestConsumeWithoutReservation(t *testing.T) {
	db := testdb.Setup(t)

	_, err := store.ConsumeCards(context.Background(), db, "missing-order")
	assert.ErrorIs(t, err, database.ErrNotReserved)
}

func TestReleaseIsIdempotent(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "10.00", 1)

	_, err := store.ReserveCard(ctx, db, product.ID, "order-a")
	require.NoError(t, err)

	released, err := store.ReleaseCards(ctx, db, "order-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	released, err = store.ReleaseCards(ctx, db, "order-a")
	require.NoError(t, err)
	assert.Zero(t, released)

	assert.Equal(t, models.CardStats{Free: 1}, stats(t, db, product.ID))
}

func TestReleaseDoesNotTouchUsedCards(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "10.00", 1)

	_, err := store.ReserveCard(ctx, db, product.ID, "order-a")
	require.NoError(t, err)
	_, err = store.ConsumeCards(ctx, db, "order-a")
	require.NoError(t, err)

	released, err := store.ReleaseCards(ctx, db, "order-a")
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Equal(t, models.CardStats{Used: 1}, stats(t, db, product.ID))

	_, err = store.ReserveCard(ctx, db, product.ID, "order-b")
	assert.ErrorIs(t, err, database.ErrExhausted)
}

func TestCardConservationUnderMixedLoad(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	const total = 20
	product := seedProduct(t, db, "1.00", total)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			orderID := fmt.Sprintf("order-%d", n)
			if _, err := store.ReserveCard(ctx, db, product.ID, orderID); err != nil {
				return
			}
			switch n % 3 {
			case 0:
				_, err := store.ConsumeCards(ctx, db, orderID)
				assert.NoError(t, err)
			case 1:
				_, err := store.ReleaseCards(ctx, db, orderID)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	s := stats(t, db, product.ID)
	assert.Equal(t, int64(total), s.Total())

	var distinct int
	err := db.GetContext(ctx, &distinct,
		`SELECT COUNT(DISTINCT reserved_order_id) FROM cards WHERE product_id = $1`, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int(s.Reserved+s.Used), distinct)
}

func TestAddCardsSkipsBlankAndDuplicateKeys(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "5.00", 0)

	added, err := store.AddCards(ctx, db, product.ID, []string{"A", " A ", "", "B", "   "})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, models.CardStats{Free: 2}, stats(t, db, product.ID))

	_, err = store.AddCards(ctx, db, "no-such-product", []string{"C"})
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestDeleteProductCascadesCards(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	product := seedProduct(t, db, "5.00", 3)

	require.NoError(t, store.DeleteProduct(ctx, db, product.ID))
	assert.Equal(t, models.CardStats{}, stats(t, db, product.ID))

	assert.ErrorIs(t, store.DeleteProduct(ctx, db, product.ID), database.ErrProductNotFound)
}

package store_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/store"
	"github.com/safar/go-card-store/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckinOncePerDay(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	user := seedUser(t, db, "daily", 0)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	checkin, balance, err := store.Checkin(ctx, db, user.ID, now, time.UTC, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), checkin.Reward)
	assert.Equal(t, int64(10), balance)

	_, _, err = store.Checkin(ctx, db, user.ID, now.Add(14*time.Hour), time.UTC, 10)
	assert.ErrorIs(t, err, database.ErrAlreadyCheckedInToday)

	_, balance, err = store.Checkin(ctx, db, user.ID, now.Add(24*time.Hour), time.UTC, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	checkins, err := store.ListCheckins(ctx, db, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, checkins, 2)
}

func TestCheckinConcurrentSameDay(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	user := seedUser(t, db, "racer", 0)
	now := time.Now()

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, _, err := store.Checkin(ctx, db, user.ID, now, time.UTC, 5)
			errs <- err
		}()
	}

	granted := 0
	for i := 0; i < 8; i++ {
		if err := <-errs; err == nil {
			granted++
		} else {
			assert.ErrorIs(t, err, database.ErrAlreadyCheckedInToday)
		}
	}
	assert.Equal(t, 1, granted)

	u, err := store.GetUser(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.Points)
}

func TestCheckinDayFollowsConfiguredZone(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	user := seedUser(t, db, "tz", 0)

	// 15:30 UTC and 16:30 UTC are the same UTC day but straddle midnight in Shanghai.
	before := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	after := time.Date(2024, 3, 10, 16, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-10", store.CheckinDate(before, shanghai))
	assert.Equal(t, "2024-03-11", store.CheckinDate(after, shanghai))

	_, _, err = store.Checkin(ctx, db, user.ID, before, shanghai, 1)
	require.NoError(t, err)
	_, _, err = store.Checkin(ctx, db, user.ID, after, shanghai, 1)
	require.NoError(t, err)
}

func TestCheckinBlockedUser(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	user := seedUser(t, db, "banned", 0)
	require.NoError(t, store.SetUserBlocked(ctx, db, user.ID, true))

	_, _, err := store.Checkin(ctx, db, user.ID, time.Now(), time.UTC, 10)
	assert.ErrorIs(t, err, database.ErrUserBlocked)

	_, _, err = store.Checkin(ctx, db, "nobody", time.Now(), time.UTC, 10)
	assert.ErrorIs(t, err, database.ErrUserNotFound)
}

func TestDebitAndCreditGuards(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	user := seedUser(t, db, "wallet", 100)

	balance, err := store.DebitPoints(ctx, db, user.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)

	_, err = store.DebitPoints(ctx, db, user.ID, 61)
	assert.ErrorIs(t, err, database.ErrInsufficientPoints)

	_, err = store.DebitPoints(ctx, db, "ghost", 1)
	assert.ErrorIs(t, err, database.ErrUserNotFound)

	_, err = store.CreditPoints(ctx, db, user.ID, 0)
	assert.ErrorIs(t, err, database.ErrInvalidPoints)

	_, err = db.ExecContext(ctx, `UPDATE login_users SET points = $2 WHERE user_id = $1`, user.ID, int64(math.MaxInt64-5))
	require.NoError(t, err)

	_, err = store.CreditPoints(ctx, db, user.ID, 6)
	assert.ErrorIs(t, err, database.ErrPointsOverflow)

	balance, err = store.CreditPoints(ctx, db, user.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), balance)
}

func TestUpsertUserKeepsBalance(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()

	seedUser(t, db, "returning", 30)

	user, err := store.UpsertUser(ctx, db, "returning", "new-name")
	require.NoError(t, err)
	assert.Equal(t, int64(30), user.Points)
	require.NotNil(t, user.Username)
	assert.Equal(t, "new-name", *user.Username)

	page, err := store.ListUsers(ctx, db, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

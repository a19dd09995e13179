// Package sweeper returns cards whose reservation outlived the payment
// window to the free pool.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/safar/go-card-store/internal/config"
	"github.com/safar/go-card-store/internal/metrics"
	"github.com/safar/go-card-store/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	lockKey = "cardstore:sweeper"
	workers = 4
)

var ErrSweepInProgress = errors.New("sweep already in progress")

type Reservations interface {
	DatabaseNow(ctx context.Context) (time.Time, error)
	StaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	ExpireReservation(ctx context.Context, orderID string, cutoff time.Time) (store.ExpireResult, error)
}

// Locker serializes sweeps across instances. TryLock must not block.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

type Result struct {
	Scanned  int
	Released int64
	Expired  int
	Skipped  int
	Failed   int
}

type Sweeper struct {
	res     Reservations
	locker  Locker
	cfg     config.SweeperConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	running atomic.Bool
}

// New returns a sweeper. locker may be nil when only one instance runs.
func New(res Reservations, locker Locker, cfg config.SweeperConfig, m *metrics.Metrics, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		res:     res,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("reservation_timeout", s.cfg.ReservationTimeout),
	)

	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) && ctx.Err() == nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs one pass. A call that overlaps a running pass, here or on
// another instance, returns ErrSweepInProgress without doing anything.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.SweepRuns.WithLabelValues("overlap").Inc()
		return Result{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			s.metrics.SweepRuns.WithLabelValues("error").Inc()
			return Result{}, err
		}
		if !acquired {
			s.metrics.SweepRuns.WithLabelValues("locked").Inc()
			return Result{}, ErrSweepInProgress
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.Warn("release sweeper lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	now, err := s.res.DatabaseNow(ctx)
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}
	cutoff := now.Add(-s.cfg.ReservationTimeout)

	orderIDs, err := s.res.StaleReservations(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}

	result := Result{Scanned: len(orderIDs)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, orderID := range orderIDs {
		g.Go(func() error {
			res, err := s.res.ExpireReservation(ctx, orderID, cutoff)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				s.logger.Error("expire reservation",
					zap.String("order_id", orderID),
					zap.Error(err),
				)
			case res.Skipped:
				result.Skipped++
			default:
				result.Released += res.Released
				if res.Expired {
					result.Expired++
				}
			}
			return nil
		})
	}
	g.Wait()

	s.metrics.CardsReleased.Add(float64(result.Released))
	s.metrics.OrdersExpired.Add(float64(result.Expired))
	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	s.metrics.SweepRuns.WithLabelValues("ok").Inc()

	if result.Scanned > 0 {
		s.logger.Info("sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int64("released", result.Released),
			zap.Int("expired", result.Expired),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}

	return result, nil
}

// Package service runs the store operations and reports what they changed
// through events, metrics and logs.
package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-card-store/internal/config"
	"github.com/safar/go-card-store/internal/events"
	"github.com/safar/go-card-store/internal/metrics"
	"go.uber.org/zap"
)

const producerName = "card-store"

type Service struct {
	db        *sqlx.DB
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	points    config.PointsConfig
	now       func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for check-in day computation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(db *sqlx.DB, publisher events.Publisher, m *metrics.Metrics, logger *zap.Logger, points config.PointsConfig, opts ...Option) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if points.Location == nil {
		points.Location = time.UTC
	}

	s := &Service{
		db:        db,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		points:    points,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// publish runs after the change it reports has committed. A failure here
// never undoes that change.
func (s *Service) publish(ctx context.Context, eventType, correlationID string, payload any) {
	ev, err := events.NewEnvelope(eventType, producerName, correlationID, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.metrics.EventsDropped.WithLabelValues(eventType).Inc()
		s.logger.Warn("publish event",
			zap.String("event_type", eventType),
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
	}
}

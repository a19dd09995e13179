package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cardstore"

type Metrics struct {
	OrdersTransitioned *prometheus.CounterVec
	ReserveExhausted   *prometheus.CounterVec
	Reconciliation     prometheus.Counter
	SweepRuns          *prometheus.CounterVec
	CardsReleased      prometheus.Counter
	OrdersExpired      prometheus.Counter
	SweepDuration      prometheus.Histogram
	CheckinsGranted    prometheus.Counter
	EventsDropped      *prometheus.CounterVec
}

// New registers every collector on reg. Pass a fresh prometheus.NewRegistry()
// in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersTransitioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by target status.",
		}, []string{"status"}),
		ReserveExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_exhausted_total",
			Help:      "Reservation attempts that found no free card.",
		}, []string{"product_id"}),
		Reconciliation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconciliation_total",
			Help:      "Payments that arrived without an active reservation.",
		}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Sweeper ticks by outcome.",
		}, []string{"outcome"}),
		CardsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "cards_released_total",
			Help:      "Cards returned to the free pool by the sweeper.",
		}),
		OrdersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "orders_expired_total",
			Help:      "Orders moved to expired by the sweeper.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "duration_seconds",
			Help:      "Wall time of a completed sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		CheckinsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_granted_total",
			Help:      "Daily check-in rewards granted.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Lifecycle events that could not be handed to the publisher.",
		}, []string{"event_type"}),
	}

	reg.MustRegister(
		m.OrdersTransitioned,
		m.ReserveExhausted,
		m.Reconciliation,
		m.SweepRuns,
		m.CardsReleased,
		m.OrdersExpired,
		m.SweepDuration,
		m.CheckinsGranted,
		m.EventsDropped,
	)

	return m
}

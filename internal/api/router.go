package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/service"
	"github.com/safar/go-card-store/internal/store"
	"go.uber.org/zap"
)

// Shop is the set of operations the HTTP layer exposes.
type Shop interface {
	Ping(ctx context.Context) error

	CreateProduct(ctx context.Context, req store.CreateProductRequest) (*models.Product, error)
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	ListProducts(ctx context.Context, page, pageSize int, activeOnly bool) (*store.OffsetPage, error)
	SetProductActive(ctx context.Context, productID string, active bool) error
	AddCards(ctx context.Context, productID string, keys []string) (int, error)
	Stock(ctx context.Context, productID string) (*models.CardStats, error)
	OrderCards(ctx context.Context, orderID string) ([]models.Card, error)

	CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, userID, cursor string, limit int) (*store.CursorPage, error)
	BeginPayment(ctx context.Context, orderID string) (*models.Order, error)
	ApplyPoints(ctx context.Context, orderID string, points int64) (*models.Order, error)
	MarkPaid(ctx context.Context, req store.MarkPaidRequest) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID string) (*models.Order, error)

	UpsertUser(ctx context.Context, userID, username string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	SetUserBlocked(ctx context.Context, userID string, blocked bool) error
	ListCheckins(ctx context.Context, userID string, limit int) ([]models.Checkin, error)
	Checkin(ctx context.Context, userID string) (*service.CheckinResult, error)

	RequestRefund(ctx context.Context, req store.RequestRefundRequest) (*models.RefundRequest, error)
	ApproveRefund(ctx context.Context, d store.RefundDecision) (*store.RefundOutcome, error)
	RejectRefund(ctx context.Context, d store.RefundDecision) (*models.RefundRequest, error)
	GetRefund(ctx context.Context, requestID int64) (*models.RefundRequest, error)
	ListRefunds(ctx context.Context, status models.RefundStatus, page, pageSize int) (*store.OffsetPage, error)

	CreateReview(ctx context.Context, req store.CreateReviewRequest) (*models.Review, error)
	ListReviews(ctx context.Context, productID string, limit int) ([]models.Review, error)
}

type Handler struct {
	shop   Shop
	logger *zap.Logger
}

func NewRouter(shop Shop, logger *zap.Logger, gatherer prometheus.Gatherer, timeout time.Duration) *chi.Mux {
	h := &Handler{shop: shop, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.createProduct)
			r.Get("/", h.listProducts)
			r.Get("/{id}", h.getProduct)
			r.Post("/{id}/active", h.setProductActive)
			r.Post("/{id}/cards", h.addCards)
			r.Get("/{id}/stock", h.stock)
			r.Get("/{id}/reviews", h.listReviews)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/{id}", h.getOrder)
			r.Post("/{id}/payment", h.beginPayment)
			r.Post("/{id}/points", h.applyPoints)
			r.Post("/{id}/deliver", h.markDelivered)
			r.Get("/{id}/cards", h.orderCards)
			r.Post("/{id}/refunds", h.requestRefund)
			r.Post("/{id}/reviews", h.createReview)
		})

		r.Post("/payments/callback", h.paymentCallback)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.upsertUser)
			r.Get("/", h.listUsers)
			r.Get("/{id}", h.getUser)
			r.Get("/{id}/orders", h.listOrders)
			r.Post("/{id}/checkin", h.checkin)
			r.Get("/{id}/checkins", h.listCheckins)
			r.Post("/{id}/block", h.setUserBlocked)
		})

		r.Route("/refunds", func(r chi.Router) {
			r.Get("/", h.listRefunds)
			r.Get("/{id}", h.getRefund)
			r.Post("/{id}/approve", h.approveRefund)
			r.Post("/{id}/reject", h.rejectRefund)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.shop.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

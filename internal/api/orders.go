package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-card-store/internal/store"
	"github.com/shopspring/decimal"
)

type createOrderBody struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UserID    *string `json:"user_id"`
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	Payee     *string `json:"payee"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderBody
	if !decode(w, r, &body) {
		return
	}
	if body.ProductID == "" {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}

	order, err := h.shop.CreateOrder(r.Context(), store.CreateOrderRequest{
		ProductID: body.ProductID,
		Quantity:  body.Quantity,
		UserID:    body.UserID,
		Username:  body.Username,
		Email:     body.Email,
		Payee:     body.Payee,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.shop.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.shop.ListOrders(r.Context(), chi.URLParam(r, "id"),
		r.URL.Query().Get("cursor"), queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) beginPayment(w http.ResponseWriter, r *http.Request) {
	order, err := h.shop.BeginPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) applyPoints(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Points int64 `json:"points"`
	}
	if !decode(w, r, &body) {
		return
	}

	order, err := h.shop.ApplyPoints(r.Context(), chi.URLParam(r, "id"), body.Points)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	order, err := h.shop.MarkDelivered(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) orderCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.shop.OrderCards(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cards)
}

type paymentCallbackBody struct {
	OrderID    string           `json:"order_id"`
	TradeNo    string           `json:"trade_no"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
}

// paymentCallback is the gateway's confirmation hook. Repeated callbacks for
// an already settled order answer 409 without changing it.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var body paymentCallbackBody
	if !decode(w, r, &body) {
		return
	}
	if body.OrderID == "" || strings.TrimSpace(body.TradeNo) == "" {
		respondError(w, http.StatusBadRequest, "order_id and trade_no are required")
		return
	}

	order, err := h.shop.MarkPaid(r.Context(), store.MarkPaidRequest{
		OrderID:    body.OrderID,
		TradeNo:    body.TradeNo,
		PaidAmount: body.PaidAmount,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-card-store/internal/models"
	"github.com/safar/go-card-store/internal/store"
)

func (h *Handler) requestRefund(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   *string `json:"user_id"`
		Username *string `json:"username"`
		Reason   *string `json:"reason"`
	}
	if !decode(w, r, &body) {
		return
	}

	req, err := h.shop.RequestRefund(r.Context(), store.RequestRefundRequest{
		OrderID:  chi.URLParam(r, "id"),
		UserID:   body.UserID,
		Username: body.Username,
		Reason:   body.Reason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	status := models.RefundStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.RefundStatusPending, models.RefundStatusApproved, models.RefundStatusRejected:
	default:
		respondError(w, http.StatusBadRequest, "unknown refund status")
		return
	}

	page, err := h.shop.ListRefunds(r.Context(), status,
		queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) getRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := refundID(w, r)
	if !ok {
		return
	}
	req, err := h.shop.GetRefund(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func refundID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid refund id")
		return 0, false
	}
	return id, true
}

type decisionBody struct {
	AdminUsername string  `json:"admin_username"`
	AdminNote     *string `json:"admin_note"`
}

func (h *Handler) decision(w http.ResponseWriter, r *http.Request) (store.RefundDecision, bool) {
	id, ok := refundID(w, r)
	if !ok {
		return store.RefundDecision{}, false
	}
	var body decisionBody
	if !decode(w, r, &body) {
		return store.RefundDecision{}, false
	}
	if body.AdminUsername == "" {
		respondError(w, http.StatusBadRequest, "admin_username is required")
		return store.RefundDecision{}, false
	}
	return store.RefundDecision{
		RequestID:     id,
		AdminUsername: body.AdminUsername,
		AdminNote:     body.AdminNote,
	}, true
}

func (h *Handler) approveRefund(w http.ResponseWriter, r *http.Request) {
	d, ok := h.decision(w, r)
	if !ok {
		return
	}
	outcome, err := h.shop.ApproveRefund(r.Context(), d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (h *Handler) rejectRefund(w http.ResponseWriter, r *http.Request) {
	d, ok := h.decision(w, r)
	if !ok {
		return
	}
	req, err := h.shop.RejectRefund(r.Context(), d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   string  `json:"user_id"`
		Username string  `json:"username"`
		Rating   int     `json:"rating"`
		Comment  *string `json:"comment"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	review, err := h.shop.CreateReview(r.Context(), store.CreateReviewRequest{
		OrderID:  chi.URLParam(r, "id"),
		UserID:   body.UserID,
		Username: body.Username,
		Rating:   body.Rating,
		Comment:  body.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}

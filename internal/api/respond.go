package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-card-store/internal/database"
	"go.uber.org/zap"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

var errorStatus = []struct {
	err    error
	status int
}{
	{database.ErrUserNotFound, http.StatusNotFound},
	{database.ErrProductNotFound, http.StatusNotFound},
	{database.ErrOrderNotFound, http.StatusNotFound},
	{database.ErrRefundNotFound, http.StatusNotFound},

	{database.ErrExhausted, http.StatusGone},

	{database.ErrNotReserved, http.StatusConflict},
	{database.ErrInvalidOrderState, http.StatusConflict},
	{database.ErrDuplicateRequest, http.StatusConflict},
	{database.ErrRefundNotPending, http.StatusConflict},
	{database.ErrAlreadyCheckedInToday, http.StatusConflict},
	{database.ErrDuplicateReview, http.StatusConflict},
	{database.ErrProductExists, http.StatusConflict},

	{database.ErrUserBlocked, http.StatusForbidden},

	{database.ErrProductUnavailable, http.StatusUnprocessableEntity},
	{database.ErrLimitExceeded, http.StatusUnprocessableEntity},
	{database.ErrAmountMismatch, http.StatusUnprocessableEntity},
	{database.ErrInvalidQuantity, http.StatusUnprocessableEntity},
	{database.ErrInvalidPrice, http.StatusUnprocessableEntity},
	{database.ErrInsufficientPoints, http.StatusUnprocessableEntity},
	{database.ErrInvalidPoints, http.StatusUnprocessableEntity},
	{database.ErrPointsOverflow, http.StatusUnprocessableEntity},
	{database.ErrInvalidRating, http.StatusUnprocessableEntity},

	{database.ErrInvalidCursor, http.StatusBadRequest},

	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// fail maps err to a response. Unexpected errors are logged and hidden from
// the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}

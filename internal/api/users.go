package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) upsertUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	user, err := h.shop.UpsertUser(r.Context(), body.UserID, body.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.shop.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.shop.ListUsers(r.Context(), queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) listCheckins(w http.ResponseWriter, r *http.Request) {
	checkins, err := h.shop.ListCheckins(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, checkins)
}

func (h *Handler) checkin(w http.ResponseWriter, r *http.Request) {
	res, err := h.shop.Checkin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) setUserBlocked(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Blocked bool `json:"blocked"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := h.shop.SetUserBlocked(r.Context(), chi.URLParam(r, "id"), body.Blocked); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

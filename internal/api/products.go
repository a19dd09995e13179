package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-card-store/internal/store"
	"github.com/shopspring/decimal"
)

type createProductBody struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Description    *string             `json:"description"`
	Price          decimal.Decimal     `json:"price"`
	CompareAtPrice decimal.NullDecimal `json:"compare_at_price"`
	Category       *string             `json:"category"`
	Image          *string             `json:"image"`
	IsHot          bool                `json:"is_hot"`
	SortOrder      int                 `json:"sort_order"`
	PurchaseLimit  *int                `json:"purchase_limit"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var body createProductBody
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	product, err := h.shop.CreateProduct(r.Context(), store.CreateProductRequest{
		ID:             body.ID,
		Name:           body.Name,
		Description:    body.Description,
		Price:          body.Price,
		CompareAtPrice: body.CompareAtPrice,
		Category:       body.Category,
		Image:          body.Image,
		IsHot:          body.IsHot,
		SortOrder:      body.SortOrder,
		PurchaseLimit:  body.PurchaseLimit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	page, err := h.shop.ListProducts(r.Context(),
		queryInt(r, "page", 1), queryInt(r, "page_size", 0), activeOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.shop.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handler) setProductActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active bool `json:"active"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := h.shop.SetProductActive(r.Context(), chi.URLParam(r, "id"), body.Active); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addCards(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keys []string `json:"keys"`
	}
	if !decode(w, r, &body) {
		return
	}
	if len(body.Keys) == 0 {
		respondError(w, http.StatusBadRequest, "keys are required")
		return
	}

	added, err := h.shop.AddCards(r.Context(), chi.URLParam(r, "id"), body.Keys)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{"added": added})
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request) {
	stats, err := h.shop.Stock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.shop.ListReviews(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reviews)
}

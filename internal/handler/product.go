package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kirashop/storefront/internal/domain/product"
)

type productResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url,omitempty"`
	Category    string  `json:"category,omitempty"`
	InStock     bool    `json:"in_stock"`
	Quantity    int     `json:"quantity"`
}

func (h *Handler) toProductResponse(p *product.Product) productResponse {
	image := p.ImageURL
	if image != "" && h.imageBaseURL != "" && !strings.HasPrefix(image, "http") {
		image = strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(image, "/")
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		ImageURL:    image,
		Category:    p.Category,
		InStock:     p.InStock,
		Quantity:    p.Quantity,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i := range products {
		resp[i] = h.toProductResponse(&products[i])
	}
	respondJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "product not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, h.toProductResponse(p))
}

type createProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
	Category    string  `json:"category"`
	InStock     *bool   `json:"in_stock"`
	Quantity    int     `json:"quantity"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case strings.TrimSpace(req.Name) == "":
		respondError(w, r, http.StatusBadRequest, "name is required")
		return
	case req.Price < 0:
		respondError(w, r, http.StatusBadRequest, "price must not be negative")
		return
	case req.Quantity < 0:
		respondError(w, r, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}
	p := &product.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       decimal.NewFromFloat(req.Price).Round(2),
		ImageURL:    req.ImageURL,
		Category:    req.Category,
		InStock:     inStock,
		Quantity:    req.Quantity,
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, h.toProductResponse(p))
}

type updateProductRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	ImageURL    *string  `json:"image_url"`
	Category    *string  `json:"category"`
	InStock     *bool    `json:"in_stock"`
	Quantity    *int     `json:"quantity"`
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid product id")
		return
	}

	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Price != nil && *req.Price < 0 {
		respondError(w, r, http.StatusBadRequest, "price must not be negative")
		return
	}
	if req.Quantity != nil && *req.Quantity < 0 {
		respondError(w, r, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	upd := product.Update{
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Category:    req.Category,
		InStock:     req.InStock,
		Quantity:    req.Quantity,
	}
	if req.Price != nil {
		price := decimal.NewFromFloat(*req.Price).Round(2)
		upd.Price = &price
	}

	p, err := h.products.Update(r.Context(), id, upd)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "product not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, h.toProductResponse(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "product not found")
			return
		}
		respondInternal(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

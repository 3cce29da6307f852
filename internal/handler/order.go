package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kirashop/storefront/internal/auth"
	"github.com/kirashop/storefront/internal/domain/order"
)

type orderItemPayload struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type placeOrderRequest struct {
	TotalAmount float64            `json:"total_amount"`
	Items       []orderItemPayload `json:"items"`
}

type orderResponse struct {
	ID          int64              `json:"id"`
	Status      string             `json:"status"`
	TotalAmount float64            `json:"total_amount"`
	Items       []orderItemPayload `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemPayload, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemPayload{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.InexactFloat64(),
		}
	}
	return orderResponse{
		ID:          o.ID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.InexactFloat64(),
		Items:       items,
		CreatedAt:   o.CreatedAt,
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     decimal.NewFromFloat(it.Price),
		}
	}

	id, _ := auth.IdentityFromContext(r.Context())
	placed, err := h.orders.Place(r.Context(), id.UserID, order.PlaceRequest{
		Items:          items,
		TotalAmount:    decimal.NewFromFloat(req.TotalAmount),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondOrderError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, toOrderResponse(placed))
}

// respondOrderError maps order placement failures onto HTTP statuses: empty
// or malformed submissions are 400, semantically invalid ones are 422.
func (h *Handler) respondOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr  *order.InvalidQuantityError
		pnfErr *order.ProductNotFoundError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr):
		respondError(w, r, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &pnfErr):
		respondError(w, r, http.StatusUnprocessableEntity, pnfErr.Error())
	case errors.Is(err, order.ErrTotalMismatch):
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		respondInternal(w, r, err)
	}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	orders, err := h.orders.ListByUser(r.Context(), id.UserID)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toOrderResponses(orders))
}

func toOrderResponses(orders []order.Order) []orderResponse {
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	return resp
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.orders.UpdateStatus(r.Context(), id, order.Status(req.Status))
	if err != nil {
		var itErr *order.InvalidTransitionError
		switch {
		case errors.Is(err, order.ErrNotFound):
			respondError(w, r, http.StatusNotFound, "order not found")
		case errors.As(err, &itErr):
			respondError(w, r, http.StatusConflict, itErr.Error())
		default:
			respondInternal(w, r, err)
		}
		return
	}
	respondJSON(w, r, http.StatusOK, toOrderResponse(updated))
}

package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kirashop/storefront/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems    = fmt.Errorf("items required")
	ErrTotalMismatch = fmt.Errorf("total does not match submitted items")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// InvalidTransitionError indicates a disallowed order status change.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// PlaceRequest holds the input for placing an order. TotalAmount is the total
// the client computed from its cart snapshot; the service recomputes it from
// the submitted items and rejects a mismatch.
type PlaceRequest struct {
	Items          []Item
	TotalAmount    decimal.Decimal
	IdempotencyKey string
}

// Service encapsulates order placement and lifecycle business logic.
type Service struct {
	products product.Repository
	orders   Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products product.Repository, orders Repository) *Service {
	return &Service{
		products: products,
		orders:   orders,
	}
}

// Place validates the submission, verifies the claimed total against the
// submitted items, and persists the order. When the request carries an
// idempotency key already seen for this user, the previously created order is
// returned instead of creating a duplicate.
func (s *Service) Place(ctx context.Context, userID int64, req PlaceRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrap(err, "lookup idempotency key")
		}
	}

	// Validate quantities and collect product IDs for a single batch fetch.
	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	known := make(map[int64]struct{}, len(fetched))
	for _, p := range fetched {
		known[p.ID] = struct{}{}
	}
	for _, item := range req.Items {
		if _, ok := known[item.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
	}

	// The total is recomputed from the submitted unit prices, never trusted.
	total := decimal.Zero
	for _, item := range req.Items {
		if item.Price.IsNegative() {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	total = total.Round(2)
	if !total.Equal(req.TotalAmount.Round(2)) {
		return nil, ErrTotalMismatch
	}

	o := &Order{
		UserID:         userID,
		Status:         StatusPending,
		TotalAmount:    total,
		IdempotencyKey: req.IdempotencyKey,
		Items:          req.Items,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// List returns every order, for back-office views.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// ListByUser returns the orders placed by one user.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus moves an order to a new status, enforcing the legal lifecycle
// transitions.
func (s *Service) UpdateStatus(ctx context.Context, id int64, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, &InvalidTransitionError{To: next}
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}

	return s.orders.UpdateStatus(ctx, id, next)
}

package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order in status s may move to next.
// Completed and cancelled are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// Order represents a placed customer order.
type Order struct {
	ID             int64
	UserID         int64
	Status         Status
	TotalAmount    decimal.Decimal
	IdempotencyKey string
	Items          []Item
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is a single product line within an order. Price is the unit price the
// customer saw at submission time, not the current catalog price.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Repository defines persistence operations for orders and their items.
type Repository interface {
	// Create persists the order together with its items in one transaction,
	// filling in the generated order and item IDs.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
	// FindByIdempotencyKey returns the order previously created by the same
	// user with the same key, or ErrNotFound.
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*Order, error)
}

package contact

import (
	"context"
	"time"
)

// Message is a submitted contact-form entry.
type Message struct {
	ID        int64
	Name      string
	Email     string
	Body      string
	CreatedAt time.Time
}

// Repository defines persistence operations for contact messages.
type Repository interface {
	Create(ctx context.Context, m *Message) error
	List(ctx context.Context) ([]Message, error)
}

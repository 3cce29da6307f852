package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirashop/storefront/internal/domain/contact"
)

const (
	createContactSQL = `INSERT INTO contacts (name, email, message)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	listContactsSQL = `SELECT id, name, email, message, created_at
		FROM contacts ORDER BY created_at DESC`
)

var _ contact.Repository = (*ContactRepository)(nil)

// ContactRepository implements contact.Repository backed by PostgreSQL.
type ContactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository returns a ContactRepository that uses the given pool.
func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

// Create persists a contact message and fills in its generated ID.
func (r *ContactRepository) Create(ctx context.Context, m *contact.Message) error {
	err := r.pool.QueryRow(ctx, createContactSQL, m.Name, m.Email, m.Body).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating contact message: %w", err)
	}
	return nil
}

// List returns all contact messages, newest first.
func (r *ContactRepository) List(ctx context.Context) ([]contact.Message, error) {
	rows, err := r.pool.Query(ctx, listContactsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing contact messages: %w", err)
	}
	return pgx.CollectRows(rows, scanContact)
}

func scanContact(row pgx.CollectableRow) (contact.Message, error) {
	var m contact.Message
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Body, &m.CreatedAt)
	return m, err
}

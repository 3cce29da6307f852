package postgres

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirashop/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, image_url, category, in_stock, quantity, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (name, description, price, image_url, category, in_stock, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	updateProductSQL = `UPDATE products SET
			name        = COALESCE($2, name),
			description = COALESCE($3, description),
			price       = COALESCE($4, price),
			image_url   = COALESCE($5, image_url),
			category    = COALESCE($6, category),
			in_stock    = COALESCE($7, in_stock),
			quantity    = COALESCE($8, quantity),
			updated_at  = now()
		WHERE id = $1
		RETURNING ` + productColumns

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	listProductIDsSQL = `SELECT id FROM products`
)

// knownIDsCapacity sizes the negative-lookup bloom filter. False positives
// only cost one extra SQL round trip.
const (
	knownIDsCapacity = 1_000_000
	knownIDsFPR      = 0.01
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
//
// A bloom filter of known product IDs fronts GetByID: a definite miss skips
// the query entirely, which keeps cart-add probes for stale or bogus IDs off
// the database. The filter cannot forget deleted IDs, so a deletion may leave
// a false positive behind; that only re-enables the SQL lookup, which then
// reports not found.
type ProductRepository struct {
	pool *pgxpool.Pool

	mu       sync.RWMutex
	knownIDs *bloom.BloomFilter
}

// NewProductRepository returns a ProductRepository that uses the given pool.
// Call WarmIDFilter once after construction to enable negative-lookup
// filtering; until then every lookup goes to the database.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// WarmIDFilter loads all current product IDs into the bloom filter.
func (r *ProductRepository) WarmIDFilter(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, listProductIDsSQL)
	if err != nil {
		return fmt.Errorf("listing product ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return fmt.Errorf("collecting product ids: %w", err)
	}

	filter := bloom.NewWithEstimates(knownIDsCapacity, knownIDsFPR)
	for _, id := range ids {
		filter.AddString(strconv.FormatInt(id, 10))
	}

	r.mu.Lock()
	r.knownIDs = filter
	r.mu.Unlock()
	return nil
}

// mightExist reports whether id could be present. Always true before the
// filter has been warmed.
func (r *ProductRepository) mightExist(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.knownIDs == nil {
		return true
	}
	return r.knownIDs.TestString(strconv.FormatInt(id, 10))
}

func (r *ProductRepository) rememberID(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.knownIDs != nil {
		r.knownIDs.AddString(strconv.FormatInt(id, 10))
	}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	if !r.mightExist(id) {
		return nil, product.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new product and fills in its generated ID and timestamps.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL,
		p.Name, p.Description, p.Price, p.ImageURL, p.Category, p.InStock, p.Quantity,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}

	r.rememberID(p.ID)
	return nil
}

// Update applies the non-nil fields of u to the product with the given ID.
func (r *ProductRepository) Update(ctx context.Context, id int64, u product.Update) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, updateProductSQL,
		id, u.Name, u.Description, u.Price, u.ImageURL, u.Category, u.InStock, u.Quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("updating product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("updating product %d: %w", id, err)
	}
	return &p, nil
}

// Delete removes a product. Deleting an unknown ID returns ErrNotFound.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL,
		&p.Category, &p.InStock, &p.Quantity, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

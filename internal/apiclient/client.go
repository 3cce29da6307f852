// Package apiclient is the HTTP client for the storefront Order API. It
// implements the submission and credential interfaces the checkout flow
// expects, plus the catalog and account operations the terminal storefront
// uses.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kirashop/storefront/internal/checkout"
)

// DefaultTimeout bounds each request unless the caller's context is tighter.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the server, carrying the message from
// the JSON error envelope when one was present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("api: unexpected status %d", e.StatusCode)
}

// User is an account as returned by the auth endpoints.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Product is a catalog item as returned by the product endpoints.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
	Category    string  `json:"category"`
	InStock     bool    `json:"in_stock"`
	Quantity    int     `json:"quantity"`
}

// PriceDecimal returns the product price as a decimal for cart arithmetic.
func (p Product) PriceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.Price).Round(2)
}

// OrderItem is one line of a placed order.
type OrderItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order is a placed order as returned by the order endpoints.
type Order struct {
	ID          int64       `json:"id"`
	Status      string      `json:"status"`
	TotalAmount float64     `json:"total_amount"`
	Items       []OrderItem `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Client talks to the storefront API. It keeps the bearer token issued by
// Register or Login and hands it to the checkout flow on demand.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

var (
	_ checkout.Submitter        = (*Client)(nil)
	_ checkout.CredentialSource = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the API at baseURL (no trailing slash needed).
// Requests are traced through the otelhttp transport.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the stored bearer token, satisfying the checkout credential
// source.
func (c *Client) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// SetToken replaces the stored bearer token. Pass "" to log out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type authPayload struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterInput is the input for creating an account.
type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Register creates an account and stores the issued bearer token.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*User, error) {
	var out authPayload
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", in, nil, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out.User, nil
}

// Login authenticates with email and password and stores the issued token.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	in := map[string]string{"email": email, "password": password}
	var out authPayload
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out.User, nil
}

// Me fetches the account behind the stored token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProducts fetches the catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProduct fetches one catalog item.
func (c *Client) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var out Product
	path := "/api/products/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyOrders fetches the orders placed by the authenticated user.
func (c *Client) MyOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := c.do(ctx, http.MethodGet, "/api/my-orders", nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder submits a checkout submission, satisfying checkout.Submitter.
// The idempotency key travels in the Idempotency-Key header.
func (c *Client) PlaceOrder(ctx context.Context, token string, sub checkout.Submission) (*checkout.ConfirmedOrder, error) {
	items := make([]OrderItem, len(sub.Items))
	for i, it := range sub.Items {
		items[i] = OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.InexactFloat64(),
		}
	}
	in := map[string]any{
		"total_amount": sub.TotalAmount.InexactFloat64(),
		"items":        items,
	}
	hdr := map[string]string{"Idempotency-Key": sub.IdempotencyKey}

	var out Order
	if err := c.doWith(ctx, http.MethodPost, "/api/orders", token, in, hdr, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &checkout.ConfirmedOrder{
		ID:          out.ID,
		Status:      out.Status,
		TotalAmount: decimal.NewFromFloat(out.TotalAmount).Round(2),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, hdr map[string]string, wantStatus int, out any) error {
	token, _ := c.Token()
	return c.doWith(ctx, method, path, token, in, hdr, wantStatus, out)
}

func (c *Client) doWith(ctx context.Context, method, path, token string, in any, hdr map[string]string, wantStatus int, out any) error {
	var body *bytes.Buffer
	if in != nil {
		body = &bytes.Buffer{}
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return errors.Wrap(err, "encode request")
		}
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range hdr {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&envelope) == nil {
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}

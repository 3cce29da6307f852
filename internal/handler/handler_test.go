package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirashop/storefront/internal/auth"
	"github.com/kirashop/storefront/internal/domain/contact"
	"github.com/kirashop/storefront/internal/domain/order"
	"github.com/kirashop/storefront/internal/domain/product"
	"github.com/kirashop/storefront/internal/domain/user"
)

// --- In-memory fakes ---

type fakeProducts struct {
	items  []product.Product
	nextID int64
}

func (f *fakeProducts) List(context.Context) ([]product.Product, error) {
	return f.items, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			p := f.items[i]
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		for i := range f.items {
			if f.items[i].ID == id {
				out = append(out, f.items[i])
			}
		}
	}
	return out, nil
}

func (f *fakeProducts) Create(_ context.Context, p *product.Product) error {
	f.nextID++
	p.ID = f.nextID
	f.items = append(f.items, *p)
	return nil
}

func (f *fakeProducts) Update(_ context.Context, id int64, u product.Update) (*product.Product, error) {
	for i := range f.items {
		if f.items[i].ID != id {
			continue
		}
		if u.Name != nil {
			f.items[i].Name = *u.Name
		}
		if u.Price != nil {
			f.items[i].Price = *u.Price
		}
		if u.InStock != nil {
			f.items[i].InStock = *u.InStock
		}
		p := f.items[i]
		return &p, nil
	}
	return nil, product.ErrNotFound
}

func (f *fakeProducts) Delete(_ context.Context, id int64) error {
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return product.ErrNotFound
}

type fakeOrders struct {
	orders []order.Order
	nextID int64
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order) error {
	f.nextID++
	o.ID = f.nextID
	o.CreatedAt = time.Now()
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	f.orders = append(f.orders, *o)
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	for i := range f.orders {
		if f.orders[i].ID == id {
			o := f.orders[i]
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (f *fakeOrders) List(context.Context) ([]order.Order, error) {
	return f.orders, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID int64) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id int64, status order.Status) (*order.Order, error) {
	for i := range f.orders {
		if f.orders[i].ID == id {
			f.orders[i].Status = status
			o := f.orders[i]
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (f *fakeOrders) FindByIdempotencyKey(_ context.Context, userID int64, key string) (*order.Order, error) {
	for i := range f.orders {
		if f.orders[i].UserID == userID && f.orders[i].IdempotencyKey == key {
			o := f.orders[i]
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

type fakeUsers struct {
	users  []user.User
	nextID int64
}

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
		if existing.Username == u.Username {
			return user.ErrUsernameTaken
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	f.users = append(f.users, *u)
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*user.User, error) {
	for i := range f.users {
		if f.users[i].Username == username {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for i := range f.users {
		if f.users[i].Email == email {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) List(context.Context) ([]user.User, error) {
	return f.users, nil
}

type fakeContacts struct {
	messages []contact.Message
}

func (f *fakeContacts) Create(_ context.Context, m *contact.Message) error {
	m.ID = int64(len(f.messages) + 1)
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeContacts) List(context.Context) ([]contact.Message, error) {
	return f.messages, nil
}

// --- Fixture ---

type fixture struct {
	router   chi.Router
	products *fakeProducts
	orders   *fakeOrders
	users    *fakeUsers
	contacts *fakeContacts
	tokens   *auth.Tokens
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		products: &fakeProducts{},
		orders:   &fakeOrders{},
		users:    &fakeUsers{},
		contacts: &fakeContacts{},
		tokens:   auth.NewTokens([]byte("test-secret"), time.Hour),
	}
	h := NewHandler(
		Config{},
		f.products,
		order.NewService(f.products, f.orders),
		f.users,
		f.contacts,
		f.tokens,
	)
	f.router = h.Routes()
	return f
}

func (f *fixture) seedUser(t *testing.T, username, email, password string, role user.Role) (*user.User, string) {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &user.User{Username: username, Email: email, PasswordHash: hash, Role: role}
	require.NoError(t, f.users.Create(context.Background(), u))

	token, err := f.tokens.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (f *fixture) seedProduct(t *testing.T, name, price string) product.Product {
	t.Helper()

	p := &product.Product{Name: name, Price: decimal.RequireFromString(price), InStock: true, Quantity: 10}
	require.NoError(t, f.products.Create(context.Background(), p))
	return *p
}

func (f *fixture) do(t *testing.T, method, path, token string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

// --- Auth ---

func TestRegister(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "alice", "email": "Alice@Example.com", "password": "correcthorse",
		"first_name": "Alice", "last_name": "Smith",
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody[authResponse](t, w)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "alice@example.com", resp.User.Email, "email is normalized")
	assert.Equal(t, "customer", resp.User.Role)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"short username", map[string]any{"username": "ab", "email": "a@b.com", "password": "longenough"}},
		{"bad email", map[string]any{"username": "alice", "email": "nope", "password": "longenough"}},
		{"short password", map[string]any{"username": "alice", "email": "a@b.com", "password": "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(t, http.MethodPost, "/auth/register", "", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)

	w := f.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "alice2", "email": "a@b.com", "password": "password123",
	}, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)

	w := f.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email": "a@b.com", "password": "password123",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[authResponse](t, w)
	assert.NotEmpty(t, resp.Token)

	id, err := f.tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, id.UserID)
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)

	for _, body := range []map[string]any{
		{"email": "a@b.com", "password": "wrong-password"},
		{"email": "nobody@b.com", "password": "password123"},
	} {
		w := f.do(t, http.MethodPost, "/auth/login", "", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid credentials", decodeBody[errorEnvelope](t, w).Message)
	}
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	u, token := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)

	w := f.do(t, http.MethodGet, "/auth/me", token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, u.ID, decodeBody[userResponse](t, w).ID)

	w = f.do(t, http.MethodGet, "/auth/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- Products ---

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "Tee", "19.99")
	f.seedProduct(t, "Mug", "7.50")

	w := f.do(t, http.MethodGet, "/products/", "", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[[]productResponse](t, w)
	require.Len(t, resp, 2)
	assert.Equal(t, "Tee", resp[0].Name)
	assert.InDelta(t, 19.99, resp[0].Price, 0.001)
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/products/42", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/products/abc", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProduct_AdminOnly(t *testing.T) {
	f := newFixture(t)
	_, customer := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)
	_, admin := f.seedUser(t, "root", "root@b.com", "password123", user.RoleAdmin)
	body := map[string]any{"name": "Tee", "price": 19.99, "quantity": 5}

	w := f.do(t, http.MethodPost, "/products/", "", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/products/", customer, body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/products/", admin, body, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody[productResponse](t, w)
	assert.NotZero(t, resp.ID)
	assert.True(t, resp.InStock, "in_stock defaults to true")
}

func TestUpdateProduct(t *testing.T) {
	f := newFixture(t)
	_, admin := f.seedUser(t, "root", "root@b.com", "password123", user.RoleAdmin)
	p := f.seedProduct(t, "Tee", "19.99")

	w := f.do(t, http.MethodPut, "/products/1", admin, map[string]any{"price": 24.99}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[productResponse](t, w)
	assert.InDelta(t, 24.99, resp.Price, 0.001)
	assert.Equal(t, p.Name, resp.Name, "unset fields are unchanged")
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture(t)
	_, admin := f.seedUser(t, "root", "root@b.com", "password123", user.RoleAdmin)
	f.seedProduct(t, "Tee", "19.99")

	w := f.do(t, http.MethodDelete, "/products/1", admin, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodDelete, "/products/1", admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Orders ---

func placeBody(p product.Product, qty int) map[string]any {
	price := p.Price.InexactFloat64()
	return map[string]any{
		"total_amount": price * float64(qty),
		"items": []map[string]any{
			{"product_id": p.ID, "quantity": qty, "price": price},
		},
	}
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	u, token := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)
	p := f.seedProduct(t, "Tee", "19.99")

	w := f.do(t, http.MethodPost, "/orders/", token, placeBody(p, 2), nil)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody[orderResponse](t, w)
	assert.Equal(t, "pending", resp.Status)
	assert.InDelta(t, 39.98, resp.TotalAmount, 0.001)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, p.ID, resp.Items[0].ProductID)

	require.Len(t, f.orders.orders, 1)
	assert.Equal(t, u.ID, f.orders.orders[0].UserID)
}

func TestPlaceOrder_RequiresAuth(t *testing.T) {
	f := newFixture(t)
	p := f.seedProduct(t, "Tee", "19.99")

	w := f.do(t, http.MethodPost, "/orders/", "", placeBody(p, 1), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.orders.orders)
}

func TestPlaceOrder_TotalMismatch(t *testing.T) {
	f := newFixture(t)
	_, token := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)
	p := f.seedProduct(t, "Tee", "19.99")

	body := placeBody(p, 2)
	body["total_amount"] = 1.00

	w := f.do(t, http.MethodPost, "/orders/", token, body, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, token := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)

	w := f.do(t, http.MethodPost, "/orders/", token, map[string]any{
		"total_amount": 5.0,
		"items":        []map[string]any{{"product_id": 77, "quantity": 1, "price": 5.0}},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	_, token := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)
	p := f.seedProduct(t, "Tee", "19.99")
	hdr := map[string]string{"Idempotency-Key": "11111111-2222-3333-4444-555555555555"}

	w := f.do(t, http.MethodPost, "/orders/", token, placeBody(p, 1), hdr)
	require.Equal(t, http.StatusCreated, w.Code)
	first := decodeBody[orderResponse](t, w)

	w = f.do(t, http.MethodPost, "/orders/", token, placeBody(p, 1), hdr)
	require.Equal(t, http.StatusCreated, w.Code)
	replay := decodeBody[orderResponse](t, w)

	assert.Equal(t, first.ID, replay.ID)
	assert.Len(t, f.orders.orders, 1)
}

func TestMyOrders_ScopedToUser(t *testing.T) {
	f := newFixture(t)
	_, alice := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)
	_, bob := f.seedUser(t, "bob", "b@b.com", "password123", user.RoleCustomer)
	p := f.seedProduct(t, "Tee", "19.99")

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/orders/", alice, placeBody(p, 1), nil).Code)

	w := f.do(t, http.MethodGet, "/my-orders", bob, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[[]orderResponse](t, w))

	w = f.do(t, http.MethodGet, "/my-orders", alice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]orderResponse](t, w), 1)
}

func TestListOrders_AdminOnly(t *testing.T) {
	f := newFixture(t)
	_, customer := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)
	_, admin := f.seedUser(t, "root", "root@b.com", "password123", user.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/orders/", customer, nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/", admin, nil, nil).Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	_, token := f.seedUser(t, "alice", "a@b.com", "password123", user.RoleCustomer)
	_, admin := f.seedUser(t, "root", "root@b.com", "password123", user.RoleAdmin)
	p := f.seedProduct(t, "Tee", "19.99")
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/orders/", token, placeBody(p, 1), nil).Code)

	w := f.do(t, http.MethodPatch, "/orders/1/status", admin, map[string]any{"status": "processing"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processing", decodeBody[orderResponse](t, w).Status)

	// processing -> pending is not a legal transition.
	w = f.do(t, http.MethodPatch, "/orders/1/status", admin, map[string]any{"status": "pending"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPatch, "/orders/99/status", admin, map[string]any{"status": "processing"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Contact ---

func TestSubmitContact(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/contact", "", map[string]any{
		"name": "Alice", "email": "a@b.com", "message": "Where is my order?",
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, f.contacts.messages, 1)
	assert.Equal(t, "Where is my order?", f.contacts.messages[0].Body)
}

func TestSubmitContact_Validation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/contact", "", map[string]any{
		"name": "Alice", "email": "not-an-email", "message": "hi",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

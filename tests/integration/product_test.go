//go:build integration

package integration

import (
	"net/http"
	"strconv"
	"testing"
)

func TestListProducts_Seeded(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	products := decodeJSON[[]productResponse](t, resp)
	if len(products) < seededCount {
		t.Fatalf("expected at least %d products, got %d", seededCount, len(products))
	}
	for _, p := range products {
		if p.Name == "" || p.Price < 0 {
			t.Fatalf("malformed product: %+v", p)
		}
	}
}

func TestGetProduct(t *testing.T) {
	p := firstProduct(t)

	resp := doGet(t, "/api/products/"+strconv.FormatInt(p.ID, 10))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeJSON[productResponse](t, resp)
	if got.ID != p.ID || got.Name != p.Name {
		t.Fatalf("expected %+v, got %+v", p, got)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	resp := doGet(t, "/api/products/999999")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestProductAdmin_CRUD(t *testing.T) {
	admin := loginAdmin(t)

	created := doPostAuth(t, "/api/products", map[string]any{
		"name":     "Integration Test Poster",
		"price":    29.99,
		"category": "prints",
		"quantity": 5,
	}, admin, nil)
	defer created.Body.Close()
	if created.StatusCode != http.StatusCreated {
		body := decodeJSON[errorResponse](t, created)
		t.Fatalf("create: expected 201, got %d (%s)", created.StatusCode, body.Message)
	}
	p := decodeJSON[productResponse](t, created)
	path := "/api/products/" + strconv.FormatInt(p.ID, 10)

	updated := doRequest(t, http.MethodPut, path, map[string]any{"price": 24.99}, admin, nil)
	if updated.StatusCode != http.StatusOK {
		updated.Body.Close()
		t.Fatalf("update: expected 200, got %d", updated.StatusCode)
	}
	got := decodeJSON[productResponse](t, updated)
	updated.Body.Close()
	if got.Price != 24.99 {
		t.Fatalf("expected updated price 24.99, got %v", got.Price)
	}

	deleted := doRequest(t, http.MethodDelete, path, nil, admin, nil)
	deleted.Body.Close()
	if deleted.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", deleted.StatusCode)
	}

	gone := doGet(t, path)
	defer gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", gone.StatusCode)
	}
}

func TestProductCreate_CustomerForbidden(t *testing.T) {
	token := registerCustomer(t, "catalog-customer")

	resp := doPostAuth(t, "/api/products", map[string]any{
		"name":  "Sneaky Product",
		"price": 1.00,
	}, token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

//go:build integration

package integration

import (
	"net/http"
	"strconv"
	"testing"
)

// firstProduct fetches a seeded in-stock product to order against.
func firstProduct(t *testing.T) productResponse {
	t.Helper()

	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	products := decodeJSON[[]productResponse](t, resp)
	for _, p := range products {
		if p.InStock {
			return p
		}
	}
	t.Fatal("no in-stock seeded product found")
	return productResponse{}
}

func orderFor(p productResponse, qty int) orderRequest {
	return orderRequest{
		TotalAmount: p.Price * float64(qty),
		Items: []orderItemPayload{
			{ProductID: p.ID, Quantity: qty, Price: p.Price},
		},
	}
}

func TestPlaceOrder_FullFlow(t *testing.T) {
	token := registerCustomer(t, "order-flow")
	p := firstProduct(t)

	resp := doPostAuth(t, "/api/orders", orderFor(p, 2), token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body := decodeJSON[errorResponse](t, resp)
		t.Fatalf("expected 201, got %d (%s)", resp.StatusCode, body.Message)
	}
	placed := decodeJSON[orderResponse](t, resp)
	if placed.Status != "pending" {
		t.Fatalf("expected pending, got %q", placed.Status)
	}
	if len(placed.Items) != 1 || placed.Items[0].ProductID != p.ID {
		t.Fatalf("unexpected items: %+v", placed.Items)
	}

	// The order shows up under /api/my-orders.
	listResp := doGetAuth(t, "/api/my-orders", token)
	defer listResp.Body.Close()
	mine := decodeJSON[[]orderResponse](t, listResp)
	if len(mine) != 1 || mine[0].ID != placed.ID {
		t.Fatalf("expected the placed order in my-orders, got %+v", mine)
	}
}

func TestPlaceOrder_RequiresAuth(t *testing.T) {
	p := firstProduct(t)

	resp := doPost(t, "/api/orders", orderFor(p, 1))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_TotalMismatch(t *testing.T) {
	token := registerCustomer(t, "mismatch-flow")
	p := firstProduct(t)

	req := orderFor(p, 2)
	req.TotalAmount = 0.01

	resp := doPostAuth(t, "/api/orders", req, token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_IdempotencyKeyDedupes(t *testing.T) {
	token := registerCustomer(t, "idem-flow")
	p := firstProduct(t)
	hdr := map[string]string{"Idempotency-Key": "integration-idem-key-1"}

	first := doPostAuth(t, "/api/orders", orderFor(p, 1), token, hdr)
	defer first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.StatusCode)
	}
	placed := decodeJSON[orderResponse](t, first)

	second := doPostAuth(t, "/api/orders", orderFor(p, 1), token, hdr)
	defer second.Body.Close()
	if second.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 on replay, got %d", second.StatusCode)
	}
	replay := decodeJSON[orderResponse](t, second)

	if replay.ID != placed.ID {
		t.Fatalf("replay created a new order: %d != %d", replay.ID, placed.ID)
	}
}

func TestOrderLifecycle_AdminStatusUpdates(t *testing.T) {
	customer := registerCustomer(t, "lifecycle-flow")
	admin := loginAdmin(t)
	p := firstProduct(t)

	resp := doPostAuth(t, "/api/orders", orderFor(p, 1), customer, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	placed := decodeJSON[orderResponse](t, resp)

	// Customers cannot update status.
	path := "/api/orders/" + strconv.FormatInt(placed.ID, 10) + "/status"
	denied := doRequest(t, http.MethodPatch, path, map[string]string{"status": "processing"}, customer, nil)
	defer denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", denied.StatusCode)
	}

	// Admin drives pending -> processing -> completed.
	for _, status := range []string{"processing", "completed"} {
		r := doRequest(t, http.MethodPatch, path, map[string]string{"status": status}, admin, nil)
		if r.StatusCode != http.StatusOK {
			r.Body.Close()
			t.Fatalf("transition to %s: expected 200, got %d", status, r.StatusCode)
		}
		updated := decodeJSON[orderResponse](t, r)
		r.Body.Close()
		if updated.Status != status {
			t.Fatalf("expected %s, got %q", status, updated.Status)
		}
	}

	// Completed is terminal.
	r := doRequest(t, http.MethodPatch, path, map[string]string{"status": "cancelled"}, admin, nil)
	defer r.Body.Close()
	if r.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 after completion, got %d", r.StatusCode)
	}
}

//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestRegisterAndMe(t *testing.T) {
	token := registerCustomer(t, "me-flow")

	resp := doGetAuth(t, "/api/auth/me", token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	me := decodeJSON[userResponse](t, resp)
	if me.Username != "me-flow" {
		t.Fatalf("expected username me-flow, got %q", me.Username)
	}
	if me.Role != "customer" {
		t.Fatalf("expected role customer, got %q", me.Role)
	}
}

func TestMe_WithoutToken(t *testing.T) {
	resp := doGet(t, "/api/auth/me")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	registerCustomer(t, "wrong-pass")

	resp := doPost(t, "/api/auth/login", map[string]string{
		"email":    "wrong-pass@example.com",
		"password": "not-the-password",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Message != "invalid credentials" {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	registerCustomer(t, "dupe-email")

	resp := doPost(t, "/api/auth/register", map[string]string{
		"username": "dupe-email-2",
		"email":    "dupe-email@example.com",
		"password": "customer-password-1",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

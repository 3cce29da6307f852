package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/kirashop/storefront/internal/auth"
	"github.com/kirashop/storefront/internal/domain/user"
)

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (req *registerRequest) validate() string {
	switch {
	case len(strings.TrimSpace(req.Username)) < 3:
		return "username must be at least 3 characters"
	case !strings.Contains(req.Email, "@"):
		return "valid email is required"
	case len(req.Password) < 8:
		return "password must be at least 8 characters"
	}
	return ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, r, http.StatusBadRequest, msg)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	u := &user.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         user.RoleCustomer,
	}
	if err := h.users.Create(r.Context(), u); err != nil {
		switch {
		case errors.Is(err, user.ErrUsernameTaken), errors.Is(err, user.ErrEmailTaken):
			respondError(w, r, http.StatusConflict, err.Error())
		default:
			respondInternal(w, r, err)
		}
		return
	}

	token, err := h.tokens.Issue(u)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, authResponse{Token: token, User: toUserResponse(u)})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Same message as a bad password so accounts cannot be enumerated.
			respondError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		respondInternal(w, r, err)
		return
	}

	if !auth.VerifyPassword(req.Password, u.PasswordHash) {
		respondError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(u)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, authResponse{Token: token, User: toUserResponse(u)})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	u, err := h.users.GetByID(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			respondError(w, r, http.StatusUnauthorized, "account no longer exists")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toUserResponse(u))
}

package handler

import (
	"net/http"
	"strings"

	"github.com/kirashop/storefront/internal/domain/contact"
)

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (h *Handler) submitContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case strings.TrimSpace(req.Name) == "":
		respondError(w, r, http.StatusBadRequest, "name is required")
		return
	case !strings.Contains(req.Email, "@"):
		respondError(w, r, http.StatusBadRequest, "valid email is required")
		return
	case strings.TrimSpace(req.Message) == "":
		respondError(w, r, http.StatusBadRequest, "message is required")
		return
	}

	m := &contact.Message{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Body:  strings.TrimSpace(req.Message),
	}
	if err := h.contacts.Create(r.Context(), m); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]any{"id": m.ID})
}

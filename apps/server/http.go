package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mahaj/chat-core/pkg/history"
	"github.com/mahaj/chat-core/pkg/model"
)

var errUnauthorized = errors.New("unauthorized")

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleMessages serves the paginated history read API. Store failures
// degrade to an empty "no more history" page rather than surfacing an error.
func (a *app) handleMessages(w http.ResponseWriter, r *http.Request) {
	// Non-numeric or missing values fall back to the defaults.
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = history.DefaultLimit
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil {
		offset = 0
	}

	page, err := a.store.Page(r.Context(), offset, limit)
	if err != nil {
		a.log.Error().Err(err).Msg("history page failed")
		page = history.Page{Messages: []model.Message{}}
	}

	writeJSON(w, page)
}

func (a *app) handleUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.registry.List())
}

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin mints a connection token. Only wired when a JWT secret is
// configured; there is no credential check, the username is opaque.
func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	token, err := a.issuer.GenerateToken(req.Username)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, loginResponse{Token: token})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Package admin exposes the operator endpoints: login, API key management,
// and usage statistics.
package admin

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"

	"github.com/dropgate/service/internal/apikey"
	"github.com/dropgate/service/internal/response"
	"github.com/dropgate/service/internal/usage"
)

// Handler holds HTTP handlers for the operator endpoints.
type Handler struct {
	keys   *apikey.Registry
	ledger *usage.Ledger

	adminUsername string
	adminPassword string
}

// NewHandler creates a new admin Handler.
func NewHandler(keys *apikey.Registry, ledger *usage.Ledger, adminUsername, adminPassword string) *Handler {
	return &Handler{
		keys:          keys,
		ledger:        ledger,
		adminUsername: adminUsername,
		adminPassword: adminPassword,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool      `json:"success"`
	Token   string    `json:"token"`
	User    loginUser `json:"user"`
}

type loginUser struct {
	Username string `json:"username"`
}

// Login handles POST /api/auth. On success it returns an opaque bearer
// token derived from the credentials themselves; it is not signed and does
// not expire.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if req.Username != h.adminUsername || req.Password != h.adminPassword {
		response.Unauthorized(w, "Invalid credentials")
		return
	}

	token := base64.StdEncoding.EncodeToString([]byte(req.Username + ":" + req.Password))
	response.JSON(w, http.StatusOK, loginResponse{
		Success: true,
		Token:   "Basic " + token,
		User:    loginUser{Username: req.Username},
	})
}

type listKeysResponse struct {
	Success bool            `json:"success"`
	Keys    []apikey.Record `json:"keys"`
}

// ListKeys handles GET /api/api-keys, newest first.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		log.Printf("admin: list api keys failed: %v", err)
		response.InternalError(w)
		return
	}
	response.JSON(w, http.StatusOK, listKeysResponse{Success: true, Keys: keys})
}

type createKeyRequest struct {
	Label string `json:"label"`
}

type createKeyResponse struct {
	Success bool           `json:"success"`
	Key     *apikey.Record `json:"key"`
}

// CreateKey handles POST /api/api-keys.
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	rec, err := h.keys.Create(r.Context(), req.Label, "admin")
	if err != nil {
		log.Printf("admin: create api key failed: %v", err)
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusCreated, createKeyResponse{Success: true, Key: rec})
}

type deleteKeyRequest struct {
	Key string `json:"key"`
}

type okResponse struct {
	Success bool `json:"success"`
}

// DeleteKey handles DELETE /api/api-keys. Removal is idempotent.
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	var req deleteKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		response.BadRequest(w, "Missing API key")
		return
	}

	if err := h.keys.Delete(r.Context(), req.Key); err != nil {
		log.Printf("admin: delete api key failed: %v", err)
		response.InternalError(w)
		return
	}
	response.JSON(w, http.StatusOK, okResponse{Success: true})
}

type statsResponse struct {
	Success bool                `json:"success"`
	Items   []usage.Record      `json:"items"`
	Summary *usage.GlobalRecord `json:"summary"`
}

// GetStats handles GET /api/stats: every identity record plus the global
// summary.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	items, summary, err := h.ledger.ListAll(r.Context())
	if err != nil {
		log.Printf("admin: list usage stats failed: %v", err)
		response.InternalError(w)
		return
	}
	response.JSON(w, http.StatusOK, statsResponse{Success: true, Items: items, Summary: summary})
}

type deleteStatsRequest struct {
	ID string `json:"id"`
}

// DeleteStats handles DELETE /api/stats: removes one identity's record.
func (h *Handler) DeleteStats(w http.ResponseWriter, r *http.Request) {
	var req deleteStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		response.BadRequest(w, "Missing stats id")
		return
	}

	if err := h.ledger.DeleteIdentity(r.Context(), req.ID); err != nil {
		log.Printf("admin: delete usage stats failed: %v", err)
		response.InternalError(w)
		return
	}
	response.JSON(w, http.StatusOK, okResponse{Success: true})
}

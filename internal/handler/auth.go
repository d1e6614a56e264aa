package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/userbot-server-go/internal/errors"
	"github.com/openclaw/userbot-server-go/internal/httputil"
	"github.com/openclaw/userbot-server-go/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/begin", h.Begin)
	r.Post("/verify", h.Verify)

	return r
}

type beginRequest struct {
	Phone string `json:"phone"`
	// APIID accepts both 12345 and "12345".
	APIID   json.Number `json:"apiId"`
	APIHash string      `json:"apiHash"`
}

// POST /auth/begin
func (h *AuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.authService.BeginAuth(r.Context(), req.Phone, req.APIID.String(), req.APIHash)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type verifyRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Password  string `json:"password,omitempty"`
}

// POST /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		writeError(w, apperrors.MissingRequired("sessionId"))
		return
	}

	result, err := h.authService.SubmitCode(r.Context(), sessionID, req.Code, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.RequiresSecondFactor {
		httputil.WriteSecondFactorRequired(w, "Two-factor password required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": result.SessionID,
		"identity":  result.Identity,
	})
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kozaktomas/hijabist/internal/session"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	workspaces *WorkspaceManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(wm *WorkspaceManager) *AuthHandler {
	return &AuthHandler{workspaces: wm}
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool             `json:"success"`
	User      *session.Session `json:"user,omitempty"`
	ExpiresAt string           `json:"expires_at,omitempty"`
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated   bool             `json:"authenticated"`
	User            *session.Session `json:"user,omitempty"`
	RememberedEmail string           `json:"remembered_email,omitempty"`
	ExpiresAt       string           `json:"expires_at,omitempty"`
}

func (h *AuthHandler) workspace(r *http.Request) (*Workspace, *middleware.Session) {
	visitor := middleware.GetSessionFromContext(r.Context())
	return h.workspaces.Get(r.Context(), visitor), visitor
}

// Login logs the visitor in with the backend.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	ws, visitor := h.workspace(r)
	user, err := ws.Sessions.Login(r.Context(), req)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		User:      user,
		ExpiresAt: visitor.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Register creates an account. The visitor stays logged out.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req session.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	ws, _ := h.workspace(r)
	msg, err := ws.Sessions.Register(r.Context(), req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "message": msg})
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws, _ := h.workspace(r)
	if err := ws.Sessions.Logout(r.Context()); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Status reports the visitor's login.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	ws, visitor := h.workspace(r)
	resp := StatusResponse{RememberedEmail: ws.Sessions.RememberedEmail(r.Context())}
	if user := ws.Sessions.Current(); user != nil {
		resp.Authenticated = true
		resp.User = user
		resp.ExpiresAt = visitor.ExpiresAt.UTC().Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}

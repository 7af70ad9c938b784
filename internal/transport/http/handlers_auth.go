package httptransport

import (
	"context"
	"net/http"
	"time"

	"custodia/internal/auth"
	"custodia/internal/platform/middleware"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// AuthService is the slice of the auth service the handlers need.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*user.User, error)
	Login(ctx context.Context, email, password string, meta auth.RequestMeta) (*user.User, string, error)
	CurrentUser(ctx context.Context, userID id.UserID) (*user.User, error)
}

// AuthHandler handles registration, login and the current-user endpoint.
type AuthHandler struct {
	auth AuthService
}

func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Phone     string     `json:"phone,omitempty"`
	Address   string     `json:"address,omitempty"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login_at,omitempty"`

	DeletionRequestedAt *time.Time `json:"deletion_requested_at,omitempty"`
	ScheduledDeletionAt *time.Time `json:"scheduled_deletion_at,omitempty"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:                  u.ID.String(),
		Email:               u.Email,
		FullName:            u.FullName,
		Phone:               u.Phone,
		Address:             u.Address,
		Role:                string(u.Role),
		IsActive:            u.IsActive,
		CreatedAt:           u.CreatedAt,
		LastLogin:           u.LastLoginAt,
		DeletionRequestedAt: u.DeletionRequestedAt,
		ScheduledDeletionAt: u.ScheduledDeletionAt,
	}
}

func (h *AuthHandler) requestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		SessionID: middleware.GetRequestID(r.Context()),
	}
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.auth.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Address:  req.Address,
		Meta:     h.requestMeta(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, token, err := h.auth.Login(r.Context(), req.Email, req.Password, h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"user":         toUserResponse(u),
	})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	u, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

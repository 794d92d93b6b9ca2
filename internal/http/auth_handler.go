package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/cart-scheduler/internal/application"
)

type authService interface {
	Login(ctx context.Context, params application.LoginParams) (application.Session, error)
	Refresh(ctx context.Context, refreshToken string) (application.Session, error)
	Logout(ctx context.Context, refreshToken string) error
}

type profileService interface {
	Me(ctx context.Context, principal application.Principal) (application.User, error)
}

// AuthHandler serves login, token refresh, logout and the current profile.
type AuthHandler struct {
	handlerBase
	service  authService
	profiles profileService
}

func NewAuthHandler(service authService, profiles profileService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{handlerBase: newHandlerBase("AuthHandler", logger), service: service, profiles: profiles}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Login", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode login request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	login := req.Login
	if login == "" {
		login = req.Email
	}

	session, err := h.service.Login(r.Context(), application.LoginParams{Login: login, Password: req.Password})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionResponse(session))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionResponse(session))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if err := h.service.Logout(r.Context(), strings.TrimSpace(req.RefreshToken)); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, okResponse{OK: true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	user, err := h.profiles.Me(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUserDTO(user))
}

type loginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type sessionResponse struct {
	AccessToken      string   `json:"access_token"`
	TokenType        string   `json:"token_type"`
	ExpiresAt        string   `json:"expires_at"`
	RefreshToken     string   `json:"refresh_token,omitempty"`
	RefreshExpiresAt string   `json:"refresh_expires_at,omitempty"`
	Roles            []string `json:"roles"`
	User             userDTO  `json:"user"`
}

func toSessionResponse(session application.Session) sessionResponse {
	resp := sessionResponse{
		AccessToken:  session.AccessToken,
		TokenType:    "bearer",
		ExpiresAt:    formatTime(session.AccessExpiresAt),
		RefreshToken: session.RefreshToken,
		Roles:        session.User.Roles.Strings(),
		User:         toUserDTO(session.User),
	}
	if !session.RefreshExpiresAt.IsZero() {
		resp.RefreshExpiresAt = formatTime(session.RefreshExpiresAt)
	}
	return resp
}

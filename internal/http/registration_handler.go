package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/cart-scheduler/internal/application"
)

type registrationService interface {
	ValidateInvite(ctx context.Context, token string) (application.InviteStatus, error)
	CompleteRegistration(ctx context.Context, token, password string) (application.User, error)
}

// RegistrationHandler lets invited users check their link and set a password.
type RegistrationHandler struct {
	handlerBase
	service registrationService
}

func NewRegistrationHandler(service registrationService, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{handlerBase: newHandlerBase("RegistrationHandler", logger), service: service}
}

func (h *RegistrationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.ValidateInvite(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := inviteStatusResponse{Valid: status.Valid, Error: status.Reason}
	if status.Valid {
		resp.FirstName = status.FirstName
		resp.LastName = status.LastName
		resp.Username = status.Username
		resp.ExpiresAt = formatTime(status.ExpiresAt)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *RegistrationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.CompleteRegistration(r.Context(), req.Token, req.Password)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Complete", "user_id", user.ID).InfoContext(r.Context(), "registration completed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, registrationResponse{
		Message:  "Registration complete. You can now log in.",
		Username: user.Username,
	})
}

type registerRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type inviteStatusResponse struct {
	Valid     bool   `json:"valid"`
	Error     string `json:"error,omitempty"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Username  string `json:"username,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type registrationResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

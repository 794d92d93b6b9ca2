package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/cart-scheduler/internal/application"
)

type userService interface {
	CreateUser(ctx context.Context, params application.CreateUserParams) (application.ProvisionedUser, error)
	UpdateUser(ctx context.Context, params application.UpdateUserParams) (application.User, error)
	SetActive(ctx context.Context, principal application.Principal, userID string, active bool) (application.User, error)
	DeleteUser(ctx context.Context, principal application.Principal, userID string) error
	IssueInvite(ctx context.Context, principal application.Principal, userID string) (application.Invite, error)
	ResetPassword(ctx context.Context, principal application.Principal, userID string) (application.Invite, error)
	CheckUsername(ctx context.Context, principal application.Principal, username string) (application.UsernameCheck, error)
	ListUsers(ctx context.Context, principal application.Principal) ([]application.User, error)
	ListBookableUsers(ctx context.Context, principal application.Principal) ([]application.Person, error)
}

// InviteLinks turns invite tokens into registration links.
type InviteLinks struct {
	FrontendURL string
	QRCode      func(content string) (string, error)
}

func (l InviteLinks) url(token string) string {
	return strings.TrimRight(l.FrontendURL, "/") + "/register?token=" + url.QueryEscape(token)
}

// UserHandler serves user administration.
type UserHandler struct {
	handlerBase
	service userService
	links   InviteLinks
}

func NewUserHandler(service userService, links InviteLinks, logger *slog.Logger) *UserHandler {
	return &UserHandler{handlerBase: newHandlerBase("UserHandler", logger), service: service, links: links}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	users, err := h.service.ListUsers(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *UserHandler) Bookable(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	people, err := h.service.ListBookableUsers(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]personDTO, 0, len(people))
	for _, p := range people {
		out = append(out, toPersonDTO(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode user request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	created, err := h.service.CreateUser(r.Context(), application.CreateUserParams{Principal: principal, Input: req.toInput()})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	invite, err := h.inviteDTO(r.Context(), created.Invite)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, provisionedUserResponse{User: toUserDTO(created.User), Invite: invite})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), application.UpdateUserParams{
		Principal: principal,
		UserID:    chi.URLParam(r, "userID"),
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUserDTO(user))
}

func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Active == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.SetActive(r.Context(), principal, chi.URLParam(r, "userID"), *req.Active)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUserDTO(user))
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteUser(r.Context(), principal, chi.URLParam(r, "userID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *UserHandler) Invite(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	h.writeInvite(w, r, func() (application.Invite, error) {
		return h.service.IssueInvite(r.Context(), principal, chi.URLParam(r, "userID"))
	})
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	h.writeInvite(w, r, func() (application.Invite, error) {
		return h.service.ResetPassword(r.Context(), principal, chi.URLParam(r, "userID"))
	})
}

func (h *UserHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	check, err := h.service.CheckUsername(r.Context(), principal, r.URL.Query().Get("username"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, usernameCheckResponse{
		Username:   check.Username,
		Available:  check.Available,
		Suggestion: check.Suggestion,
	})
}

func (h *UserHandler) writeInvite(w http.ResponseWriter, r *http.Request, issue func() (application.Invite, error)) {
	invite, err := issue()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dto, err := h.inviteDTO(r.Context(), invite)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, dto)
}

func (h *UserHandler) inviteDTO(ctx context.Context, invite application.Invite) (*inviteDTO, error) {
	if invite.Token == "" {
		return nil, nil
	}
	dto := &inviteDTO{
		Token:     invite.Token,
		InviteURL: h.links.url(invite.Token),
		ExpiresAt: formatTime(invite.ExpiresAt),
	}
	if h.links.QRCode != nil {
		code, err := h.links.QRCode(dto.InviteURL)
		if err != nil {
			h.log(ctx, "inviteDTO", "user_id", invite.UserID).ErrorContext(ctx, "failed to render invite qr code", "error", err)
			return nil, err
		}
		dto.QRCode = code
	}
	return dto, nil
}

type userRequest struct {
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	Username  string   `json:"username"`
	Email     *string  `json:"email"`
	Roles     []string `json:"roles"`
}

func (r userRequest) toInput() application.UserInput {
	return application.UserInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Username:  r.Username,
		Email:     r.Email,
		Roles:     r.Roles,
	}
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type userDTO struct {
	ID         string   `json:"id"`
	FirstName  string   `json:"firstname"`
	LastName   string   `json:"lastname"`
	Username   string   `json:"username"`
	Email      *string  `json:"email"`
	Roles      []string `json:"roles"`
	Active     bool     `json:"active"`
	Registered bool     `json:"registered"`
	CreatedAt  string   `json:"created_at"`
}

func toUserDTO(u application.User) userDTO {
	roles := u.Roles.Strings()
	if roles == nil {
		roles = []string{}
	}
	return userDTO{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		Email:      u.Email,
		Roles:      roles,
		Active:     u.Active,
		Registered: u.Registered(),
		CreatedAt:  formatTime(u.CreatedAt),
	}
}

type personDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

func toPersonDTO(p application.Person) personDTO {
	return personDTO{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName}
}

type inviteDTO struct {
	Token     string `json:"token"`
	InviteURL string `json:"invite_url"`
	QRCode    string `json:"qr_code,omitempty"`
	ExpiresAt string `json:"expires_at"`
}

type provisionedUserResponse struct {
	User   userDTO    `json:"user"`
	Invite *inviteDTO `json:"invite,omitempty"`
}

type usernameCheckResponse struct {
	Username   string `json:"username"`
	Available  bool   `json:"available"`
	Suggestion string `json:"suggestion,omitempty"`
}

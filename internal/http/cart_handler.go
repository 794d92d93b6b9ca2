package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/cart-scheduler/internal/application"
)

type cartService interface {
	CreateCart(ctx context.Context, principal application.Principal, input application.CartInput) (application.Cart, error)
	UpdateCart(ctx context.Context, principal application.Principal, cartID string, input application.CartInput) (application.Cart, error)
	ToggleCart(ctx context.Context, principal application.Principal, cartID string) (application.Cart, error)
	DeleteCart(ctx context.Context, principal application.Principal, cartID string) error
	GetCart(ctx context.Context, principal application.Principal, cartID string) (application.Cart, error)
	ListCarts(ctx context.Context, principal application.Principal, activeOnly bool) ([]application.Cart, error)
}

type availabilityService interface {
	AvailableSlots(ctx context.Context, principal application.Principal, start, end time.Time) ([]application.CartAvailability, error)
}

// CartHandler serves the cart catalog.
type CartHandler struct {
	handlerBase
	service      cartService
	availability availabilityService
}

func NewCartHandler(service cartService, availability availabilityService, logger *slog.Logger) *CartHandler {
	return &CartHandler{handlerBase: newHandlerBase("CartHandler", logger), service: service, availability: availability}
}

func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, fieldError("active", "active must be a boolean"))
			return
		}
		activeOnly = parsed
	}

	carts, err := h.service.ListCarts(r.Context(), principal, activeOnly)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]cartDTO, 0, len(carts))
	for _, c := range carts {
		out = append(out, toCartDTO(c))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	cart, err := h.service.GetCart(r.Context(), principal, chi.URLParam(r, "cartID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCartDTO(cart))
}

func (h *CartHandler) Availability(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	start, end, err := requiredWindow(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	slots, err := h.availability.AvailableSlots(r.Context(), principal, start, end)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]cartAvailabilityDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, cartAvailabilityDTO{cartDTO: toCartDTO(s.Cart), SlotsRemaining: s.SlotsRemaining})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req cartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	cart, err := h.service.CreateCart(r.Context(), principal, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toCartDTO(cart))
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req cartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	cart, err := h.service.UpdateCart(r.Context(), principal, chi.URLParam(r, "cartID"), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCartDTO(cart))
}

func (h *CartHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	cart, err := h.service.ToggleCart(r.Context(), principal, chi.URLParam(r, "cartID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCartDTO(cart))
}

func (h *CartHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteCart(r.Context(), principal, chi.URLParam(r, "cartID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type cartRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Active   *bool  `json:"active"`
}

func (r cartRequest) toInput() application.CartInput {
	return application.CartInput{Name: r.Name, Location: r.Location, Active: r.Active}
}

type cartDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Active   bool   `json:"active"`
}

func toCartDTO(c application.Cart) cartDTO {
	return cartDTO{ID: c.ID, Name: c.Name, Location: c.Location, Active: c.Active}
}

type cartAvailabilityDTO struct {
	cartDTO
	SlotsRemaining int `json:"slots_remaining"`
}

// requiredWindow reads the mandatory start and end query parameters.
func requiredWindow(r *http.Request) (time.Time, time.Time, error) {
	query := r.URL.Query()
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}

	start, err := queryTime(query, "start")
	if err != nil {
		vErr.FieldErrors["start"] = err.Error()
	} else if start == nil {
		vErr.FieldErrors["start"] = "start is required"
	}
	end, err := queryTime(query, "end")
	if err != nil {
		vErr.FieldErrors["end"] = err.Error()
	} else if end == nil {
		vErr.FieldErrors["end"] = "end is required"
	}
	if vErr.HasErrors() {
		return time.Time{}, time.Time{}, vErr
	}
	return *start, *end, nil
}

func fieldError(field, message string) *application.ValidationError {
	return &application.ValidationError{FieldErrors: map[string]string{field: message}}
}

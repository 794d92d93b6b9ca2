package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/cart-scheduler/internal/application"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (application.BookingSummary, error)
	DeleteBooking(ctx context.Context, principal application.Principal, bookingID string) error
	ListByCart(ctx context.Context, principal application.Principal, cartID string) ([]application.BookingSummary, error)
	ListByParticipant(ctx context.Context, principal application.Principal, userID string) ([]application.BookingSummary, error)
	ListInWindow(ctx context.Context, principal application.Principal, start, end time.Time, cartID string) ([]application.BookingSummary, error)
}

// BookingHandler serves cart bookings.
type BookingHandler struct {
	handlerBase
	service bookingService
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{handlerBase: newHandlerBase("BookingHandler", logger), service: service}
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	start, end, err := requiredWindow(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	bookings, err := h.service.ListInWindow(r.Context(), principal, start, end, r.URL.Query().Get("cart_id"))
	h.writeBookings(w, r, bookings, err)
}

func (h *BookingHandler) Mine(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	bookings, err := h.service.ListByParticipant(r.Context(), principal, principal.UserID)
	h.writeBookings(w, r, bookings, err)
}

func (h *BookingHandler) ByCart(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	bookings, err := h.service.ListByCart(r.Context(), principal, chi.URLParam(r, "cartID"))
	h.writeBookings(w, r, bookings, err)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req bookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{
		Principal:      principal,
		CartID:         req.CartID,
		Start:          req.Start,
		End:            req.End,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toBookingDTO(booking))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteBooking(r.Context(), principal, chi.URLParam(r, "bookingID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *BookingHandler) writeBookings(w http.ResponseWriter, r *http.Request, bookings []application.BookingSummary, err error) {
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]bookingDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingDTO(b))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

type bookingRequest struct {
	CartID         string    `json:"cart_id"`
	ParticipantIDs []string  `json:"participant_ids"`
	Start          time.Time `json:"start_datetime"`
	End            time.Time `json:"end_datetime"`
}

type bookingDTO struct {
	ID           string      `json:"id"`
	CartID       string      `json:"cart_id"`
	CartName     string      `json:"cart_name"`
	Start        string      `json:"start_datetime"`
	End          string      `json:"end_datetime"`
	Participants []personDTO `json:"participants"`
}

func toBookingDTO(b application.BookingSummary) bookingDTO {
	participants := make([]personDTO, 0, len(b.Participants))
	for _, p := range b.Participants {
		participants = append(participants, toPersonDTO(p))
	}
	return bookingDTO{
		ID:           b.ID,
		CartID:       b.CartID,
		CartName:     b.CartName,
		Start:        formatTime(b.Start),
		End:          formatTime(b.End),
		Participants: participants,
	}
}

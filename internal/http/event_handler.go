package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/cart-scheduler/internal/application"
)

type eventService interface {
	ListEvents(ctx context.Context, principal application.Principal) ([]application.Event, error)
	CreateEvent(ctx context.Context, principal application.Principal, input application.EventInput) (application.Event, error)
	UpdateEvent(ctx context.Context, principal application.Principal, eventID string, input application.EventInput) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error
}

// EventHandler serves the congregation calendar.
type EventHandler struct {
	handlerBase
	service eventService
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{handlerBase: newHandlerBase("EventHandler", logger), service: service}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	events, err := h.service.ListEvents(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toEventDTO(e))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	event, err := h.service.CreateEvent(r.Context(), principal, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toEventDTO(event))
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), principal, chi.URLParam(r, "eventID"), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteEvent(r.Context(), principal, chi.URLParam(r, "eventID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type eventRequest struct {
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Start       time.Time `json:"start_datetime"`
	End         time.Time `json:"end_datetime"`
}

func (r eventRequest) toInput() application.EventInput {
	return application.EventInput{Name: r.Name, Description: r.Description, Start: r.Start, End: r.End}
}

type eventDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Start       string  `json:"start_datetime"`
	End         string  `json:"end_datetime"`
	CreatedAt   string  `json:"created_at"`
}

func toEventDTO(e application.Event) eventDTO {
	return eventDTO{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Start:       formatTime(e.Start),
		End:         formatTime(e.End),
		CreatedAt:   formatTime(e.CreatedAt),
	}
}

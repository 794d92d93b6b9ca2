package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/cart-scheduler/internal/application"
)

type meetingPointService interface {
	Create(ctx context.Context, principal application.Principal, input application.MeetingPointInput) (application.MeetingPoint, error)
	CreateSeries(ctx context.Context, principal application.Principal, input application.MeetingPointSeriesInput) ([]application.MeetingPoint, error)
	Update(ctx context.Context, principal application.Principal, id string, patch application.MeetingPointPatch) (application.MeetingPoint, error)
	Delete(ctx context.Context, principal application.Principal, id string) error
	DeleteSeries(ctx context.Context, principal application.Principal, seriesID string) (int, error)
	Get(ctx context.Context, principal application.Principal, id string) (application.MeetingPoint, error)
	ListByMonth(ctx context.Context, principal application.Principal, month string) ([]application.MeetingPoint, error)
	ExportMonth(ctx context.Context, principal application.Principal, month string, renderer application.MonthRenderer) (application.Document, error)
}

type statsService interface {
	PerConductorStats(ctx context.Context, principal application.Principal, year int) ([]application.ConductorStat, error)
	MonthlyStats(ctx context.Context, principal application.Principal, year int) ([]application.MonthlyConductorStat, error)
}

// MeetingPointHandler serves meeting points, their exports and conductor statistics.
type MeetingPointHandler struct {
	handlerBase
	service   meetingPointService
	stats     statsService
	renderers map[string]application.MonthRenderer
	now       func() time.Time
}

// Export formats served under /meeting-points/export.{format}.
const (
	FormatPDF = "pdf"
	FormatICS = "ics"
)

func NewMeetingPointHandler(service meetingPointService, stats statsService, renderers map[string]application.MonthRenderer, now func() time.Time, logger *slog.Logger) *MeetingPointHandler {
	if now == nil {
		now = time.Now
	}
	return &MeetingPointHandler{
		handlerBase: newHandlerBase("MeetingPointHandler", logger),
		service:     service,
		stats:       stats,
		renderers:   renderers,
		now:         now,
	}
}

func (h *MeetingPointHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	points, err := h.service.ListByMonth(r.Context(), principal, r.URL.Query().Get("month"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]meetingPointDTO, 0, len(points))
	for _, p := range points {
		out = append(out, toMeetingPointDTO(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *MeetingPointHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	point, err := h.service.Get(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMeetingPointDTO(point))
}

// Export returns a handler rendering the requested month in format.
func (h *MeetingPointHandler) Export(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderer, ok := h.renderers[format]
		if !ok {
			h.responder.writeError(r.Context(), w, http.StatusNotFound, nil)
			return
		}
		principal, _ := PrincipalFromContext(r.Context())

		doc, err := h.service.ExportMonth(r.Context(), principal, r.URL.Query().Get("month"), renderer)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}

		h.responder.writeDocument(r.Context(), w, doc)
	}
}

func (h *MeetingPointHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req meetingPointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode meeting point", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	point, err := h.service.Create(r.Context(), principal, application.MeetingPointInput{
		Date:        req.Date.Time,
		Time:        req.Time,
		Location:    req.Location,
		ConductorID: req.ConductorID,
		Outline:     req.Outline,
		Link:        req.Link,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toMeetingPointDTO(point))
}

func (h *MeetingPointHandler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req meetingPointSeriesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	points, err := h.service.CreateSeries(r.Context(), principal, application.MeetingPointSeriesInput{
		StartDate:   req.StartDate.Time,
		EndDate:     req.EndDate.Time,
		Frequency:   req.Recurrence,
		Time:        req.Time,
		Location:    req.Location,
		ConductorID: req.ConductorID,
		Outline:     req.Outline,
		Link:        req.Link,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]meetingPointDTO, 0, len(points))
	for _, p := range points {
		out = append(out, toMeetingPointDTO(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, out)
}

func (h *MeetingPointHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req meetingPointPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	point, err := h.service.Update(r.Context(), principal, chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMeetingPointDTO(point))
}

func (h *MeetingPointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.Delete(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *MeetingPointHandler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	deleted, err := h.service.DeleteSeries(r.Context(), principal, chi.URLParam(r, "seriesID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, deleteSeriesResponse{Deleted: deleted})
}

func (h *MeetingPointHandler) ConductorStats(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	year, err := queryYear(r.URL.Query(), h.now().Year())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, fieldError("year", err.Error()))
		return
	}

	stats, err := h.stats.PerConductorStats(r.Context(), principal, year)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]conductorStatDTO, 0, len(stats))
	for _, s := range stats {
		dto := conductorStatDTO{
			UserID:    s.Conductor.ID,
			FirstName: s.Conductor.FirstName,
			LastName:  s.Conductor.LastName,
			Count:     s.AssignmentCount,
		}
		if s.LastAssignedDate != nil {
			last := formatDate(*s.LastAssignedDate)
			dto.LastDate = &last
		}
		out = append(out, dto)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *MeetingPointHandler) MonthlyStats(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	year, err := queryYear(r.URL.Query(), h.now().Year())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, fieldError("year", err.Error()))
		return
	}

	stats, err := h.stats.MonthlyStats(r.Context(), principal, year)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]monthlyStatDTO, 0, len(stats))
	for _, s := range stats {
		out = append(out, monthlyStatDTO{
			Month:     s.Month,
			UserID:    s.Conductor.ID,
			FirstName: s.Conductor.FirstName,
			LastName:  s.Conductor.LastName,
			Count:     s.AssignmentCount,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

type meetingPointRequest struct {
	Date        civilDate `json:"date"`
	Time        string    `json:"time"`
	Location    string    `json:"location"`
	ConductorID *string   `json:"conductor_id"`
	Outline     *string   `json:"outline"`
	Link        *string   `json:"link"`
}

type meetingPointSeriesRequest struct {
	StartDate   civilDate `json:"start_date"`
	EndDate     civilDate `json:"end_date"`
	Recurrence  string    `json:"recurrence"`
	Time        string    `json:"time"`
	Location    string    `json:"location"`
	ConductorID *string   `json:"conductor_id"`
	Outline     *string   `json:"outline"`
	Link        *string   `json:"link"`
}

type meetingPointPatchRequest struct {
	Date        *civilDate     `json:"date"`
	Time        *string        `json:"time"`
	Location    *string        `json:"location"`
	ConductorID nullableString `json:"conductor_id"`
	Outline     nullableString `json:"outline"`
	Link        nullableString `json:"link"`
}

func (r meetingPointPatchRequest) toPatch() application.MeetingPointPatch {
	patch := application.MeetingPointPatch{
		Time:        r.Time,
		Location:    r.Location,
		ConductorID: r.ConductorID.toNullable(),
		Outline:     r.Outline.toNullable(),
		Link:        r.Link.toNullable(),
	}
	if r.Date != nil {
		date := r.Date.Time
		patch.Date = &date
	}
	return patch
}

type meetingPointDTO struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	Location      string  `json:"location"`
	ConductorID   *string `json:"conductor_id"`
	ConductorName *string `json:"conductor_name"`
	Outline       *string `json:"outline"`
	Link          *string `json:"link"`
	Month         string  `json:"month"`
	SeriesID      *string `json:"series_id"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func toMeetingPointDTO(p application.MeetingPoint) meetingPointDTO {
	dto := meetingPointDTO{
		ID:          p.ID,
		Date:        formatDate(p.Date),
		Time:        p.Time,
		Location:    p.Location,
		ConductorID: p.ConductorID,
		Outline:     p.Outline,
		Link:        p.Link,
		Month:       p.Month,
		SeriesID:    p.SeriesID,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
	if p.Conductor != nil {
		name := p.Conductor.DisplayName()
		dto.ConductorName = &name
	}
	return dto
}

type deleteSeriesResponse struct {
	Deleted int `json:"deleted"`
}

type conductorStatDTO struct {
	UserID    string  `json:"user_id"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	Count     int     `json:"count"`
	LastDate  *string `json:"last_date"`
}

type monthlyStatDTO struct {
	Month     string `json:"month"`
	UserID    string `json:"user_id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Count     int    `json:"count"`
}

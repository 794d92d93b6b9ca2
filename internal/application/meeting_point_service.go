package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/example/cart-scheduler/internal/persistence"
	"github.com/example/cart-scheduler/internal/recurrence"
)

const monthLayout = "2006-01"

var clockTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])(:[0-5][0-9])?$`)

// MeetingPointRepository captures the persistence operations needed by the meeting point service.
type MeetingPointRepository interface {
	CreateMeetingPoints(ctx context.Context, points []MeetingPoint) error
	UpdateMeetingPoint(ctx context.Context, point MeetingPoint) error
	GetMeetingPoint(ctx context.Context, id string) (MeetingPoint, error)
	ListMeetingPointsByMonth(ctx context.Context, month string) ([]MeetingPoint, error)
	DeleteMeetingPoint(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, seriesID string) (int, error)
}

// MonthRenderer renders the meeting points of one month into a downloadable document.
type MonthRenderer interface {
	RenderMonth(month string, points []MeetingPoint) ([]byte, error)
	ContentType() string
	Filename(month string) string
}

// Document is a rendered export.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// MeetingPointService manages meeting points and recurring series of them.
type MeetingPointService struct {
	points      MeetingPointRepository
	users       UserDirectory
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMeetingPointService constructs a meeting point service with the provided dependencies.
func NewMeetingPointService(points MeetingPointRepository, users UserDirectory, idGenerator func() string, now func() time.Time) *MeetingPointService {
	return NewMeetingPointServiceWithLogger(points, users, idGenerator, now, nil)
}

// NewMeetingPointServiceWithLogger constructs a meeting point service with a specified logger.
func NewMeetingPointServiceWithLogger(points MeetingPointRepository, users UserDirectory, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MeetingPointService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MeetingPointService{points: points, users: users, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *MeetingPointService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingPointService", operation, attrs...)
}

// Create validates input and stores a single meeting point.
func (s *MeetingPointService) Create(ctx context.Context, principal Principal, input MeetingPointInput) (point MeetingPoint, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Create", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create meeting point", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("meeting_point_id", point.ID).InfoContext(ctx, "meeting point created")
	}()

	if !principal.CanPlan() {
		err = ErrUnauthorized
		return
	}

	if input.Date.IsZero() {
		err = newValidationError("date", "date is required")
		return
	}
	var normalized MeetingPointInput
	normalized, err = s.normalizeInput(ctx, input)
	if err != nil {
		return
	}

	point = s.newPoint(civilDate(input.Date), normalized, nil)
	if err = s.points.CreateMeetingPoints(ctx, []MeetingPoint{point}); err != nil {
		err = mapMeetingPointRepoError(err)
		point = MeetingPoint{}
		return
	}
	point, err = s.reload(ctx, point.ID)
	return
}

// CreateSeries expands a recurrence into meeting points sharing one series id
// and stores them all or none.
func (s *MeetingPointService) CreateSeries(ctx context.Context, principal Principal, input MeetingPointSeriesInput) (points []MeetingPoint, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CreateSeries",
		"principal_id", principal.UserID,
		"frequency", input.Frequency,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create meeting point series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting point series created", "count", len(points))
	}()

	if !principal.CanPlan() {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	freq, freqErr := recurrence.ParseFrequency(input.Frequency)
	if freqErr != nil {
		vErr.add("recurrence", "recurrence must be weekly, biweekly or monthly")
	}
	if input.StartDate.IsZero() {
		vErr.add("start_date", "start date is required")
	}
	if input.EndDate.IsZero() {
		vErr.add("end_date", "end date is required")
	}

	normalized, nErr := s.normalizeInput(ctx, MeetingPointInput{
		Time:        input.Time,
		Location:    input.Location,
		ConductorID: input.ConductorID,
		Outline:     input.Outline,
		Link:        input.Link,
	})
	if nErr != nil {
		var inputErr *ValidationError
		if !errors.As(nErr, &inputErr) {
			err = nErr
			return
		}
		vErr.merge(inputErr)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	dates, genErr := recurrence.GenerateDates(input.StartDate, input.EndDate, freq)
	switch {
	case errors.Is(genErr, recurrence.ErrInvalidRange):
		err = newValidationError("end_date", "end date must not be before start date")
		return
	case errors.Is(genErr, recurrence.ErrTooManyOccurrences):
		err = newValidationError("end_date", fmt.Sprintf("a series may not exceed %d occurrences", recurrence.MaxOccurrences))
		return
	case genErr != nil:
		err = genErr
		return
	}

	seriesID := s.idGenerator()
	points = make([]MeetingPoint, 0, len(dates))
	for _, date := range dates {
		points = append(points, s.newPoint(date, normalized, &seriesID))
	}

	if err = s.points.CreateMeetingPoints(ctx, points); err != nil {
		err = mapMeetingPointRepoError(err)
		points = nil
		return
	}
	if normalized.ConductorID != nil {
		var conductor MeetingPoint
		conductor, err = s.reload(ctx, points[0].ID)
		if err != nil {
			points = nil
			return
		}
		for i := range points {
			points[i].Conductor = conductor.Conductor
		}
	}
	return
}

// Update applies a partial change. The month follows the date.
func (s *MeetingPointService) Update(ctx context.Context, principal Principal, id string, patch MeetingPointPatch) (point MeetingPoint, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Update", "principal_id", principal.UserID, "meeting_point_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update meeting point", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting point updated")
	}()

	if !principal.CanPlan() {
		err = ErrUnauthorized
		return
	}

	point, err = s.points.GetMeetingPoint(ctx, id)
	if err != nil {
		err = mapMeetingPointRepoError(err)
		return
	}

	merged := MeetingPointInput{
		Date:        point.Date,
		Time:        point.Time,
		Location:    point.Location,
		ConductorID: point.ConductorID,
		Outline:     point.Outline,
		Link:        point.Link,
	}
	if patch.Date != nil {
		if patch.Date.IsZero() {
			err = newValidationError("date", "date is required")
			point = MeetingPoint{}
			return
		}
		merged.Date = *patch.Date
	}
	if patch.Time != nil {
		merged.Time = *patch.Time
	}
	if patch.Location != nil {
		merged.Location = *patch.Location
	}
	if patch.ConductorID.Set {
		merged.ConductorID = patch.ConductorID.Value
	}
	if patch.Outline.Set {
		merged.Outline = patch.Outline.Value
	}
	if patch.Link.Set {
		merged.Link = patch.Link.Value
	}

	var normalized MeetingPointInput
	normalized, err = s.normalizeInput(ctx, merged)
	if err != nil {
		point = MeetingPoint{}
		return
	}

	point.Date = civilDate(merged.Date)
	point.Month = point.Date.Format(monthLayout)
	point.Time = normalized.Time
	point.Location = normalized.Location
	point.ConductorID = normalized.ConductorID
	point.Outline = normalized.Outline
	point.Link = normalized.Link
	point.UpdatedAt = s.now()

	if err = s.points.UpdateMeetingPoint(ctx, point); err != nil {
		err = mapMeetingPointRepoError(err)
		point = MeetingPoint{}
		return
	}
	point, err = s.reload(ctx, id)
	return
}

// Delete removes one meeting point.
func (s *MeetingPointService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Delete", "principal_id", principal.UserID, "meeting_point_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete meeting point", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting point deleted")
	}()

	if !principal.CanPlan() {
		err = ErrUnauthorized
		return
	}
	err = mapMeetingPointRepoError(s.points.DeleteMeetingPoint(ctx, id))
	return
}

// DeleteSeries removes every meeting point of a series and reports how many
// were removed. An unknown or empty series is ErrNotFound.
func (s *MeetingPointService) DeleteSeries(ctx context.Context, principal Principal, seriesID string) (deleted int, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteSeries", "principal_id", principal.UserID, "series_id", seriesID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete meeting point series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting point series deleted", "count", deleted)
	}()

	if !principal.CanPlan() {
		err = ErrUnauthorized
		return
	}

	deleted, err = s.points.DeleteSeries(ctx, seriesID)
	if err != nil {
		err = mapMeetingPointRepoError(err)
		deleted = 0
		return
	}
	if deleted == 0 {
		err = ErrNotFound
	}
	return
}

// Get returns one meeting point with its conductor resolved.
func (s *MeetingPointService) Get(ctx context.Context, principal Principal, id string) (MeetingPoint, error) {
	if err := s.ready(); err != nil {
		return MeetingPoint{}, err
	}
	if !principal.Authenticated() {
		return MeetingPoint{}, ErrUnauthenticated
	}
	return s.reload(ctx, id)
}

// ListByMonth returns the meeting points of a YYYY-MM month ordered by date and time.
func (s *MeetingPointService) ListByMonth(ctx context.Context, principal Principal, month string) ([]MeetingPoint, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}
	month, vErr := normalizeMonth(month)
	if vErr.HasErrors() {
		return nil, vErr
	}
	points, err := s.points.ListMeetingPointsByMonth(ctx, month)
	if err != nil {
		return nil, mapMeetingPointRepoError(err)
	}
	return points, nil
}

// ExportMonth renders the meeting points of a month with renderer.
func (s *MeetingPointService) ExportMonth(ctx context.Context, principal Principal, month string, renderer MonthRenderer) (doc Document, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if renderer == nil {
		err = fmt.Errorf("month renderer not configured")
		return
	}

	logger := s.loggerWith(ctx, "ExportMonth", "principal_id", principal.UserID, "month", month, "content_type", renderer.ContentType())
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to export meeting points", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting points exported", "bytes", len(doc.Body))
	}()

	var points []MeetingPoint
	points, err = s.ListByMonth(ctx, principal, month)
	if err != nil {
		return
	}
	month, _ = normalizeMonth(month)

	var body []byte
	body, err = renderer.RenderMonth(month, points)
	if err != nil {
		err = fmt.Errorf("render %s: %w", month, err)
		return
	}
	doc = Document{Filename: renderer.Filename(month), ContentType: renderer.ContentType(), Body: body}
	return
}

func (s *MeetingPointService) ready() error {
	if s == nil {
		return fmt.Errorf("MeetingPointService is nil")
	}
	if s.points == nil {
		return fmt.Errorf("meeting point repository not configured")
	}
	return nil
}

func (s *MeetingPointService) reload(ctx context.Context, id string) (MeetingPoint, error) {
	point, err := s.points.GetMeetingPoint(ctx, id)
	if err != nil {
		return MeetingPoint{}, mapMeetingPointRepoError(err)
	}
	return point, nil
}

func (s *MeetingPointService) newPoint(date time.Time, input MeetingPointInput, seriesID *string) MeetingPoint {
	now := s.now()
	return MeetingPoint{
		ID:          s.idGenerator(),
		Date:        date,
		Time:        input.Time,
		Location:    input.Location,
		ConductorID: input.ConductorID,
		Outline:     input.Outline,
		Link:        input.Link,
		Month:       date.Format(monthLayout),
		SeriesID:    seriesID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// normalizeInput validates every attribute except the date and checks that
// the conductor exists.
func (s *MeetingPointService) normalizeInput(ctx context.Context, input MeetingPointInput) (MeetingPointInput, error) {
	vErr := &ValidationError{}

	out := MeetingPointInput{
		Date:        input.Date,
		Location:    strings.TrimSpace(input.Location),
		ConductorID: normalizeOptionalString(input.ConductorID),
		Outline:     normalizeOptionalString(input.Outline),
		Link:        normalizeOptionalString(input.Link),
	}
	clock, ok := normalizeClockTime(input.Time)
	if !ok {
		vErr.add("time", "time must use HH:MM")
	}
	out.Time = clock
	if out.Location == "" {
		vErr.add("location", "location is required")
	}
	if vErr.HasErrors() {
		return MeetingPointInput{}, vErr
	}

	if out.ConductorID != nil && s.users != nil {
		missing, err := s.users.MissingUserIDs(ctx, []string{*out.ConductorID})
		if err != nil {
			return MeetingPointInput{}, mapMeetingPointRepoError(err)
		}
		if len(missing) > 0 {
			return MeetingPointInput{}, newValidationError("conductor_id", "conductor does not exist")
		}
	}
	return out, nil
}

func normalizeClockTime(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if !clockTimePattern.MatchString(value) {
		return "", false
	}
	return value[:5], true
}

func normalizeMonth(month string) (string, *ValidationError) {
	month = strings.TrimSpace(month)
	parsed, err := time.Parse(monthLayout, month)
	if err != nil {
		return "", newValidationError("month", "month must use YYYY-MM")
	}
	return parsed.Format(monthLayout), nil
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mapMeetingPointRepoError(err error) error {
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return newValidationError("conductor_id", "conductor does not exist")
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return newValidationError("date", "meeting point attributes violate a storage constraint")
	}
	return mapRepoError(err)
}

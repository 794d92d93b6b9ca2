package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// EventRepository captures the persistence operations needed by the event service.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// EventService manages congregation wide calendar entries.
type EventService struct {
	events      EventRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService constructs an event service with the provided dependencies.
func NewEventService(events EventRepository, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, idGenerator, now, nil)
}

// NewEventServiceWithLogger constructs an event service with a specified logger.
func NewEventServiceWithLogger(events EventRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{events: events, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

func (s *EventService) ready() error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}
	return nil
}

// ListEvents returns every event ordered by start.
func (s *EventService) ListEvents(ctx context.Context, principal Principal) ([]Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// CreateEvent validates and stores a new event for administrators.
func (s *EventService) CreateEvent(ctx context.Context, principal Principal, input EventInput) (event Event, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID).InfoContext(ctx, "event created")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if vErr := validateEventInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	event = Event{
		ID:          s.idGenerator(),
		Name:        strings.TrimSpace(input.Name),
		Description: normalizeOptionalString(input.Description),
		Start:       input.Start.UTC(),
		End:         input.End.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.events.CreateEvent(ctx, event); err != nil {
		err = mapRepoError(err)
		event = Event{}
	}
	return
}

// UpdateEvent replaces the attributes of an existing event for administrators.
func (s *EventService) UpdateEvent(ctx context.Context, principal Principal, eventID string, input EventInput) (event Event, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if vErr := validateEventInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	event, err = s.events.GetEvent(ctx, strings.TrimSpace(eventID))
	if err != nil {
		err = mapRepoError(err)
		return
	}

	event.Name = strings.TrimSpace(input.Name)
	event.Description = normalizeOptionalString(input.Description)
	event.Start = input.Start.UTC()
	event.End = input.End.UTC()
	event.UpdatedAt = s.now()

	if err = s.events.UpdateEvent(ctx, event); err != nil {
		err = mapRepoError(err)
		event = Event{}
	}
	return
}

// DeleteEvent removes an event for administrators.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	err = mapRepoError(s.events.DeleteEvent(ctx, strings.TrimSpace(eventID)))
	return
}

func validateEventInput(input EventInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	switch {
	case input.Start.IsZero():
		vErr.add("start", "start is required")
	case input.End.IsZero():
		vErr.add("end", "end is required")
	case !input.End.After(input.Start):
		vErr.add("end", "end must be after start")
	}
	return vErr
}

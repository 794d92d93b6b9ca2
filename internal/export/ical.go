package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/example/cart-scheduler/internal/application"
)

// DefaultMeetingDuration is the length given to calendar entries of meeting
// points, which only record a start time.
const DefaultMeetingDuration = time.Hour

// ICSRenderer renders a month of meeting points as an iCalendar feed.
type ICSRenderer struct {
	location *time.Location
	duration time.Duration
	domain   string
}

// NewICSRenderer returns a renderer interpreting meeting times in location.
// The domain qualifies event UIDs.
func NewICSRenderer(location *time.Location, duration time.Duration, domain string) *ICSRenderer {
	if location == nil {
		location = time.UTC
	}
	if duration <= 0 {
		duration = DefaultMeetingDuration
	}
	if domain == "" {
		domain = "cart-scheduler"
	}
	return &ICSRenderer{location: location, duration: duration, domain: domain}
}

// ContentType implements application.MonthRenderer.
func (r *ICSRenderer) ContentType() string { return "text/calendar; charset=utf-8" }

// Filename implements application.MonthRenderer.
func (r *ICSRenderer) Filename(month string) string {
	return fmt.Sprintf("puntos_encuentro_%s.ics", month)
}

// RenderMonth implements application.MonthRenderer.
func (r *ICSRenderer) RenderMonth(month string, points []application.MeetingPoint) ([]byte, error) {
	title, err := monthTitle(month)
	if err != nil {
		return nil, err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//cart-scheduler//meeting points//ES")
	cal.SetXWRCalName(title)
	cal.SetXWRTimezone(r.location.String())

	for _, mp := range points {
		start, err := r.startOf(mp)
		if err != nil {
			return nil, fmt.Errorf("meeting point %s: %w", mp.ID, err)
		}

		event := cal.AddEvent(mp.ID + "@" + r.domain)
		event.SetDtStampTime(mp.UpdatedAt)
		event.SetCreatedTime(mp.CreatedAt)
		event.SetModifiedAt(mp.UpdatedAt)
		event.SetStartAt(start)
		event.SetEndAt(start.Add(r.duration))
		event.SetSummary("Punto de encuentro: " + mp.Location)
		event.SetLocation(mp.Location)
		if description := describe(mp); description != "" {
			event.SetDescription(description)
		}
		if link := deref(mp.Link); link != "" {
			event.SetURL(link)
		}
	}
	return []byte(cal.Serialize()), nil
}

func (r *ICSRenderer) startOf(mp application.MeetingPoint) (time.Time, error) {
	parts := strings.SplitN(mp.Time, ":", 3)
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid time %q", mp.Time)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", mp.Time, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", mp.Time, err)
	}
	y, m, d := mp.Date.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, r.location), nil
}

func describe(mp application.MeetingPoint) string {
	var lines []string
	if name := conductorName(mp.Conductor); name != "" {
		lines = append(lines, "Director: "+name)
	}
	if outline := deref(mp.Outline); outline != "" {
		lines = append(lines, "Tema: "+outline)
	}
	if link := deref(mp.Link); link != "" {
		lines = append(lines, "Enlace: "+link)
	}
	return strings.Join(lines, "\n")
}

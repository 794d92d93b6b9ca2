package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyWeekly repeats every seven days.
	FrequencyWeekly
	// FrequencyBiweekly repeats every fourteen days.
	FrequencyBiweekly
	// FrequencyMonthly repeats on the same day of the following month, capped at the 28th.
	FrequencyMonthly
)

// MonthlyDayCap is the highest day-of-month a monthly series rolls onto.
const MonthlyDayCap = 28

// MaxOccurrences bounds a single expansion.
const MaxOccurrences = 1000

var (
	// ErrInvalidFrequency indicates the recurrence frequency is not supported.
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
	// ErrInvalidRange indicates the end date precedes the start date.
	ErrInvalidRange = errors.New("recurrence: end date must not be before start date")
	// ErrTooManyOccurrences indicates the range expands past MaxOccurrences dates.
	ErrTooManyOccurrences = errors.New("recurrence: too many occurrences")
)

// String returns the wire name of the frequency.
func (f Frequency) String() string {
	switch f {
	case FrequencyWeekly:
		return "weekly"
	case FrequencyBiweekly:
		return "biweekly"
	case FrequencyMonthly:
		return "monthly"
	default:
		return "unspecified"
	}
}

// ParseFrequency converts a wire name into a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "weekly":
		return FrequencyWeekly, nil
	case "biweekly":
		return FrequencyBiweekly, nil
	case "monthly":
		return FrequencyMonthly, nil
	default:
		return FrequencyUnspecified, fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}
}

// GenerateDates expands [start, end] into an ordered list of civil dates
// (midnight UTC). The first date is always start; every date is <= end.
func GenerateDates(start, end time.Time, freq Frequency) ([]time.Time, error) {
	start = civilDate(start)
	end = civilDate(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}

	switch freq {
	case FrequencyWeekly:
		return weekly(start, end, 1)
	case FrequencyBiweekly:
		return weekly(start, end, 2)
	case FrequencyMonthly:
		return monthly(start, end)
	default:
		return nil, ErrInvalidFrequency
	}
}

func weekly(start, end time.Time, interval int) ([]time.Time, error) {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.WEEKLY,
		Interval: interval,
		Dtstart:  start,
		Until:    end,
		Count:    MaxOccurrences + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("recurrence: build weekly rule: %w", err)
	}

	dates := rule.All()
	if len(dates) > MaxOccurrences {
		return nil, ErrTooManyOccurrences
	}
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, civilDate(d))
	}
	return out, nil
}

func monthly(start, end time.Time) ([]time.Time, error) {
	out := make([]time.Time, 0, 12)
	current := start
	for !current.After(end) {
		if len(out) == MaxOccurrences {
			return nil, ErrTooManyOccurrences
		}
		out = append(out, current)
		current = nextMonth(current)
	}
	return out, nil
}

// nextMonth advances to the same day of the following month, capped at
// MonthlyDayCap so the result always exists.
func nextMonth(d time.Time) time.Time {
	year, month := d.Year(), d.Month()+1
	if month > time.December {
		month = time.January
		year++
	}
	day := d.Day()
	if day > MonthlyDayCap {
		day = MonthlyDayCap
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

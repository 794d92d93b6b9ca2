package http

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/cart-scheduler/internal/application"
)

const dateLayout = "2006-01-02"

// queryTime parses an RFC 3339 query value. Missing values yield nil.
func queryTime(values map[string][]string, key string) (*time.Time, error) {
	raw := strings.TrimSpace(first(values[key]))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp", key)
	}
	return &parsed, nil
}

func queryYear(values map[string][]string, fallback int) (int, error) {
	raw := strings.TrimSpace(first(values["year"]))
	if raw == "" {
		return fallback, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("year must be an integer")
	}
	return year, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// civilDate is a calendar date encoded as YYYY-MM-DD.
type civilDate struct {
	time.Time
}

func (d *civilDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("date must use YYYY-MM-DD: %w", err)
	}
	d.Time = parsed
	return nil
}

// nullableString tells an explicit null apart from an absent field.
type nullableString struct {
	Set   bool
	Value *string
}

func (n *nullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	n.Value = &value
	return nil
}

func (n nullableString) toNullable() application.Nullable[string] {
	return application.Nullable[string]{Set: n.Set, Value: n.Value}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

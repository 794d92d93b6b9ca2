package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 2, hour, minute, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{
			name: "touching endpoints do not overlap",
			a:    Interval{Start: at(10, 0), End: at(11, 0)},
			b:    Interval{Start: at(11, 0), End: at(12, 0)},
			want: false,
		},
		{
			name: "partial overlap",
			a:    Interval{Start: at(10, 0), End: at(11, 0)},
			b:    Interval{Start: at(10, 30), End: at(11, 30)},
			want: true,
		},
		{
			name: "containment",
			a:    Interval{Start: at(9, 0), End: at(12, 0)},
			b:    Interval{Start: at(10, 0), End: at(11, 0)},
			want: true,
		},
		{
			name: "disjoint",
			a:    Interval{Start: at(8, 0), End: at(9, 0)},
			b:    Interval{Start: at(10, 0), End: at(11, 0)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, tt.a))
		})
	}
}

func TestOverlapCount(t *testing.T) {
	existing := []Interval{
		{ID: "a", Start: at(10, 0), End: at(11, 0)},
		{ID: "b", Start: at(10, 30), End: at(12, 0)},
		{ID: "c", Start: at(12, 0), End: at(13, 0)},
	}

	t.Run("counts only overlapping intervals", func(t *testing.T) {
		assert.Equal(t, 2, OverlapCount(existing, Interval{Start: at(10, 45), End: at(11, 15)}, ""))
		assert.Equal(t, 1, OverlapCount(existing, Interval{Start: at(11, 0), End: at(12, 0)}, ""))
		assert.Equal(t, 0, OverlapCount(existing, Interval{Start: at(13, 0), End: at(14, 0)}, ""))
	})

	t.Run("skips the excluded interval", func(t *testing.T) {
		assert.Equal(t, 1, OverlapCount(existing, Interval{Start: at(10, 45), End: at(11, 15)}, "a"))
	})
}

func TestSlotsRemaining(t *testing.T) {
	assert.Equal(t, 2, SlotsRemaining(CartCapacity, 0))
	assert.Equal(t, 1, SlotsRemaining(CartCapacity, 1))
	assert.Equal(t, 0, SlotsRemaining(CartCapacity, 2))
	assert.Equal(t, 0, SlotsRemaining(CartCapacity, 5))
	assert.True(t, HasCapacity(CartCapacity, 1))
	assert.False(t, HasCapacity(CartCapacity, 2))
}

func TestMaxConcurrent(t *testing.T) {
	t.Run("back to back bookings stack at most two deep", func(t *testing.T) {
		intervals := []Interval{
			{Start: at(10, 0), End: at(11, 0)},
			{Start: at(11, 0), End: at(12, 0)},
			{Start: at(10, 30), End: at(11, 30)},
		}
		assert.Equal(t, 2, MaxConcurrent(intervals))
	})

	t.Run("empty set", func(t *testing.T) {
		assert.Equal(t, 0, MaxConcurrent(nil))
	})
}

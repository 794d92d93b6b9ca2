package scheduler

import "time"

// CartCapacity is the maximum number of bookings that may overlap on one cart
// at any instant.
const CartCapacity = 2

// Interval is a half-open time range [Start, End) owned by a booking.
type Interval struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval ends strictly after it starts.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether two half-open intervals share at least one instant.
// Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// OverlapCount counts the existing intervals that overlap the candidate,
// ignoring the interval identified by excludeID when it is non-empty.
func OverlapCount(existing []Interval, candidate Interval, excludeID string) int {
	count := 0
	for _, interval := range existing {
		if excludeID != "" && interval.ID == excludeID {
			continue
		}
		if Overlaps(interval, candidate) {
			count++
		}
	}
	return count
}

// SlotsRemaining returns how many more bookings fit next to overlap existing
// ones. The result is never negative.
func SlotsRemaining(capacity, overlap int) int {
	if remaining := capacity - overlap; remaining > 0 {
		return remaining
	}
	return 0
}

// HasCapacity reports whether one more booking can be placed on top of the
// given overlap count.
func HasCapacity(capacity, overlap int) bool {
	return overlap < capacity
}

// MaxConcurrent returns the largest number of intervals that contain a single
// instant. It is used to assert the capacity invariant over a stored set.
func MaxConcurrent(intervals []Interval) int {
	max := 0
	for _, probe := range intervals {
		// The peak is always reached at some interval's start instant.
		count := 0
		for _, other := range intervals {
			if !other.Start.After(probe.Start) && other.End.After(probe.Start) {
				count++
			}
		}
		if count > max {
			max = count
		}
	}
	return max
}

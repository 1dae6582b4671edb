package dayboundary

import (
	"log/slog"
	"time"
)

// Bucket groups an event for display.
type Bucket int

const (
	// BucketUpcoming: the event has not happened yet.
	BucketUpcoming Bucket = iota
	// BucketNow: the event happened within the NOW window.
	BucketNow
	// BucketEarlierToday: past the NOW window, same local day as now.
	BucketEarlierToday
	// BucketPreviousDay: past the NOW window, on an earlier local day.
	BucketPreviousDay
)

func (b Bucket) String() string {
	switch b {
	case BucketUpcoming:
		return "upcoming"
	case BucketNow:
		return "now"
	case BucketEarlierToday:
		return "earlier_today"
	case BucketPreviousDay:
		return "previous_day"
	}
	return "unknown"
}

// MarshalText encodes the bucket name.
func (b Bucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a bucket name. Unknown names decode as
// BucketUpcoming.
func (b *Bucket) UnmarshalText(text []byte) error {
	switch string(text) {
	case "now":
		*b = BucketNow
	case "earlier_today":
		*b = BucketEarlierToday
	case "previous_day":
		*b = BucketPreviousDay
	default:
		*b = BucketUpcoming
	}
	return nil
}

// Past reports whether the bucket is styled as already happened.
func (b Bucket) Past() bool {
	return b == BucketEarlierToday || b == BucketPreviousDay
}

// BucketOf groups the event at instant at relative to now. A nil loc means
// UTC.
func BucketOf(at, now int64, loc *time.Location, window time.Duration) Bucket {
	elapsed := now - at
	switch {
	case elapsed < 0:
		return BucketUpcoming
	case elapsed < window.Milliseconds():
		return BucketNow
	case SameDay(at, now, loc):
		return BucketEarlierToday
	default:
		return BucketPreviousDay
	}
}

// IsPastForDisplay reports whether the event at instant at has happened and
// left the NOW window.
func IsPastForDisplay(at, now int64, loc *time.Location, window time.Duration) bool {
	return BucketOf(at, now, loc, window).Past()
}

// DayKey returns the local calendar day of instant at as YYYY-MM-DD.
func DayKey(at int64, loc *time.Location) string {
	return time.UnixMilli(at).In(orUTC(loc)).Format("2006-01-02")
}

// SameDay reports whether a and b fall on the same local calendar day.
func SameDay(a, b int64, loc *time.Location) bool {
	loc = orUTC(loc)
	ay, am, ad := time.UnixMilli(a).In(loc).Date()
	by, bm, bd := time.UnixMilli(b).In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Clock renders instant at as a local HH:MM clock.
func Clock(at int64, loc *time.Location) string {
	return time.UnixMilli(at).In(orUTC(loc)).Format("15:04")
}

// ResolveLocation loads the named zone. Empty names and unknown zones fall
// back to UTC; unknown zones are logged.
func ResolveLocation(name string, logger *slog.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("unknown timezone, using UTC", "name", name, "error", err)
		return time.UTC
	}
	return loc
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

package countdown

import (
	"fmt"
	"math"
	"time"
)

// Format renders deltaMs as H:MM:SS. Hours are unpadded and unbounded;
// negative deltas render as 0:00:00.
func Format(deltaMs int64) string {
	if deltaMs < 0 {
		deltaMs = 0
	}
	secs := deltaMs / 1000
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// FormatDuration is Format for a time.Duration.
func FormatDuration(d time.Duration) string {
	return Format(d.Milliseconds())
}

const (
	msMinute = int64(time.Minute / time.Millisecond)
	msHour   = int64(time.Hour / time.Millisecond)
	msDay    = 24 * msHour
)

// Relative renders deltaMs (event minus now) as a coarse phrase:
// "just now" within a minute either side, then "in 5 min" / "5 min ago",
// "in 3 h" / "3 h ago", "in 2 d" / "2 d ago".
func Relative(deltaMs int64) string {
	unit, n := relativeScale(deltaMs)
	if unit == 0 {
		return "just now"
	}
	var word string
	switch unit {
	case msMinute:
		word = "min"
	case msHour:
		word = "h"
	default:
		word = "d"
	}
	if n > 0 {
		return fmt.Sprintf("in %d %s", n, word)
	}
	return fmt.Sprintf("%d %s ago", -n, word)
}

// relativeScale quantizes deltaMs to the unit Relative displays. n*unit
// never decreases as deltaMs grows, which keeps labels monotonic.
func relativeScale(deltaMs int64) (unit, n int64) {
	if deltaMs == math.MinInt64 {
		deltaMs++
	}
	abs := deltaMs
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < msMinute:
		return 0, 0
	case abs < msHour:
		unit = msMinute
	case abs < msDay:
		unit = msHour
	default:
		unit = msDay
	}
	n = abs / unit
	if deltaMs < 0 {
		n = -n
	}
	return unit, n
}

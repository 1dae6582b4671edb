package instant

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Pair is a date with a separate clock field, as many calendar feeds ship
// them ("2025-03-07" + "8:30am"). Time, when non-empty, replaces the clock
// portion of Date in Date's own location.
type Pair struct {
	Date any
	Time string
}

// layouts tried in order for string values. Layouts without an offset are
// parsed in UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04pm",
	"3:04:05pm",
	"3pm",
}

// Resolve converts v to epoch milliseconds.
func Resolve(v any) (int64, bool) {
	t, ok := toTime(v)
	if !ok {
		return 0, false
	}
	return t.UnixMilli(), true
}

// Time is Resolve returning a time.Time in UTC.
func Time(v any) (time.Time, bool) {
	t, ok := toTime(v)
	if !ok {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x, true
	case *time.Time:
		if x == nil || x.IsZero() {
			return time.Time{}, false
		}
		return *x, true
	case string:
		return parseString(x)
	case Pair:
		return resolvePair(x)
	case *Pair:
		if x == nil {
			return time.Time{}, false
		}
		return resolvePair(*x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return time.UnixMilli(n), true
		}
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromFloat(f)
	case int:
		return time.UnixMilli(int64(x)), true
	case int32:
		return time.UnixMilli(int64(x)), true
	case int64:
		return time.UnixMilli(x), true
	case uint32:
		return time.UnixMilli(int64(x)), true
	case uint64:
		if x > math.MaxInt64 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(x)), true
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	}
	return time.Time{}, false
}

func fromFloat(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(f)), true
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func resolvePair(p Pair) (time.Time, bool) {
	date, ok := toTime(p.Date)
	if !ok {
		return time.Time{}, false
	}
	clock := strings.TrimSpace(p.Time)
	if clock == "" {
		return date, true
	}
	h, m, sec, ok := parseClock(clock)
	if !ok {
		return time.Time{}, false
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, sec, 0, date.Location()), true
}

// parseClock reads a wall clock. Words like "All Day" or "Tentative" do not
// parse.
func parseClock(s string) (hour, minute, second int, ok bool) {
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), t.Second(), true
		}
	}
	return 0, 0, 0, false
}

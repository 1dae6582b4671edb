package dayboundary

import (
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata unavailable for %s: %v", name, err)
	}
	return loc
}

func TestBucketOf(t *testing.T) {
	window := 10 * time.Minute
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC).UnixMilli()
	minute := int64(time.Minute / time.Millisecond)

	tests := []struct {
		name string
		at   int64
		want Bucket
	}{
		{"future", now + minute, BucketUpcoming},
		{"at now", now, BucketNow},
		{"inside window", now - 9*minute, BucketNow},
		{"window edge", now - 10*minute, BucketEarlierToday},
		{"early morning", time.Date(2025, 3, 7, 0, 30, 0, 0, time.UTC).UnixMilli(), BucketEarlierToday},
		{"yesterday", time.Date(2025, 3, 6, 23, 0, 0, 0, time.UTC).UnixMilli(), BucketPreviousDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BucketOf(tt.at, now, nil, window); got != tt.want {
				t.Errorf("BucketOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBucketOf_EarlierTodayDependsOnZone(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	window := 10 * time.Minute

	// 2025-03-07 02:00 UTC is 11:00 in Tokyo; an event at 23:00 UTC the day
	// before is 08:00 the same Tokyo day.
	now := time.Date(2025, 3, 7, 2, 0, 0, 0, time.UTC).UnixMilli()
	at := time.Date(2025, 3, 6, 23, 0, 0, 0, time.UTC).UnixMilli()

	if got := BucketOf(at, now, time.UTC, window); got != BucketPreviousDay {
		t.Errorf("BucketOf(UTC) = %v, want %v", got, BucketPreviousDay)
	}
	if got := BucketOf(at, now, tokyo, window); got != BucketEarlierToday {
		t.Errorf("BucketOf(Tokyo) = %v, want %v", got, BucketEarlierToday)
	}
}

func TestIsPastForDisplay_ZoneIndependent(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		mustLoad(t, "America/New_York"),
		mustLoad(t, "Asia/Kolkata"),
		mustLoad(t, "Pacific/Kiritimati"),
	}
	window := 10 * time.Minute
	now := time.Date(2025, 11, 2, 6, 30, 0, 0, time.UTC).UnixMilli()
	step := int64(37 * time.Second / time.Millisecond)

	for at := now - 2*int64(time.Hour/time.Millisecond); at <= now+int64(time.Hour/time.Millisecond); at += step {
		want := now-at >= window.Milliseconds()
		for _, loc := range zones {
			if got := IsPastForDisplay(at, now, loc, window); got != want {
				t.Fatalf("IsPastForDisplay(%d, %s) = %v, want %v", at, loc, got, want)
			}
		}
	}
}

func TestDayKeyAndClock(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	at := time.Date(2025, 3, 7, 3, 30, 0, 0, time.UTC).UnixMilli()

	if got := DayKey(at, time.UTC); got != "2025-03-07" {
		t.Errorf("DayKey(UTC) = %q, want %q", got, "2025-03-07")
	}
	if got := DayKey(at, ny); got != "2025-03-06" {
		t.Errorf("DayKey(NY) = %q, want %q", got, "2025-03-06")
	}
	if got := Clock(at, ny); got != "22:30" {
		t.Errorf("Clock(NY) = %q, want %q", got, "22:30")
	}
	if got := DayKey(at, nil); got != "2025-03-07" {
		t.Errorf("DayKey(nil) = %q, want %q", got, "2025-03-07")
	}
}

func TestResolveLocation(t *testing.T) {
	if got := ResolveLocation("", nil); got != time.UTC {
		t.Errorf("ResolveLocation(\"\") = %v, want UTC", got)
	}
	if got := ResolveLocation("Not/AZone", nil); got != time.UTC {
		t.Errorf("ResolveLocation(bad) = %v, want UTC", got)
	}
	ny := mustLoad(t, "America/New_York")
	if got := ResolveLocation("America/New_York", nil); got.String() != ny.String() {
		t.Errorf("ResolveLocation() = %v, want %v", got, ny)
	}
}

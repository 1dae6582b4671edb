package countdown

import (
	"math"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		delta int64
		want  string
	}{
		{0, "0:00:00"},
		{999, "0:00:00"},
		{1000, "0:00:01"},
		{59_999, "0:00:59"},
		{60_000, "0:01:00"},
		{3_599_000, "0:59:59"},
		{3_600_000, "1:00:00"},
		{(2*3600 + 5*60 + 7) * 1000, "2:05:07"},
		{125 * 3_600_000, "125:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Format(tt.delta); got != tt.want {
				t.Errorf("Format(%d) = %q, want %q", tt.delta, got, tt.want)
			}
		})
	}
}

func TestFormat_ClampsNegative(t *testing.T) {
	if got, want := Format(-5000), Format(0); got != want {
		t.Errorf("Format(-5000) = %q, want %q", got, want)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(90 * time.Second); got != "0:01:30" {
		t.Errorf("FormatDuration(90s) = %q, want %q", got, "0:01:30")
	}
}

func TestRelative(t *testing.T) {
	tests := []struct {
		delta time.Duration
		want  string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{-59 * time.Second, "just now"},
		{3 * time.Minute, "in 3 min"},
		{-3 * time.Minute, "3 min ago"},
		{59 * time.Minute, "in 59 min"},
		{time.Hour, "in 1 h"},
		{-5 * time.Hour, "5 h ago"},
		{48 * time.Hour, "in 2 d"},
		{-72 * time.Hour, "3 d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Relative(tt.delta.Milliseconds()); got != tt.want {
				t.Errorf("Relative(%v) = %q, want %q", tt.delta, got, tt.want)
			}
		})
	}
}

func TestRelative_Extremes(t *testing.T) {
	if got, want := Relative(math.MinInt64), "106751991167 d ago"; got != want {
		t.Errorf("Relative(MinInt64) = %q, want %q", got, want)
	}
	if got, want := Relative(math.MaxInt64), "in 106751991167 d"; got != want {
		t.Errorf("Relative(MaxInt64) = %q, want %q", got, want)
	}
}

func TestRelative_Monotonic(t *testing.T) {
	prev := int64(-1 << 62)
	step := int64(7_919) // prime step crosses every boundary at odd offsets
	for d := -4 * msDay; d <= 4*msDay; d += step {
		unit, n := relativeScale(d)
		scale := unit * n
		if scale < prev {
			t.Fatalf("relativeScale(%d) = %d, below previous %d", d, scale, prev)
		}
		prev = scale
	}
}

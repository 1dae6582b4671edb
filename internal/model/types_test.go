package model

import (
	"testing"
	"time"

	"github.com/rickgao/econcal/internal/instant"
)

func TestEventKey(t *testing.T) {
	t.Run("upstream ID wins", func(t *testing.T) {
		e := Event{ID: "abc", Name: "CPI m/m"}
		if got := EventKey(e, 3); got != "abc" {
			t.Errorf("EventKey() = %q, want %q", got, "abc")
		}
	})

	t.Run("synthesized keys are stable", func(t *testing.T) {
		e := Event{Name: "CPI m/m", Time: "2025-03-12T12:30:00Z"}
		a := EventKey(e, 0)
		b := EventKey(e, 0)
		if a != b {
			t.Errorf("EventKey() not stable: %q vs %q", a, b)
		}
		if a == "" {
			t.Error("EventKey() is empty")
		}
	})

	t.Run("equivalent times yield the same key", func(t *testing.T) {
		moment := time.Date(2025, 3, 12, 12, 30, 0, 0, time.UTC)
		a := EventKey(Event{Name: "CPI m/m", Time: moment}, 0)
		b := EventKey(Event{Name: "CPI m/m", Time: "2025-03-12T12:30:00Z"}, 0)
		c := EventKey(Event{Name: "CPI m/m", Time: instant.Pair{Date: "2025-03-12", Time: "12:30"}}, 0)
		if a != b || b != c {
			t.Errorf("EventKey() differs across equivalent times: %q %q %q", a, b, c)
		}
	})

	t.Run("index disambiguates duplicates", func(t *testing.T) {
		e := Event{Name: "Bank Holiday", Time: "2025-04-18"}
		if EventKey(e, 0) == EventKey(e, 1) {
			t.Error("EventKey() equal for different indexes")
		}
	})

	t.Run("unresolvable time still keyed", func(t *testing.T) {
		e := Event{Name: "Speech", Time: instant.Pair{Date: "2025-04-18", Time: "Tentative"}}
		if EventKey(e, 0) != EventKey(e, 0) {
			t.Error("EventKey() not stable for unresolvable time")
		}
	})
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name string
		e    Event
		want string
	}{
		{"no source", Event{ID: "42"}, "42"},
		{"with source", Event{ID: "42", Source: "primary"}, "primary/42"},
		{"escaped source", Event{ID: "b/c", Source: "a/b"}, "a%2Fb/b/c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdentityKey(tt.e, 0); got != tt.want {
				t.Errorf("IdentityKey() = %q, want %q", got, tt.want)
			}
		})
	}

	if IdentityKey(Event{ID: "1", Source: "primary"}, 0) == IdentityKey(Event{ID: "1", Source: "ics"}, 0) {
		t.Error("IdentityKey() equal for the same ID from different sources")
	}
}

func TestEnsureIDs(t *testing.T) {
	events := []Event{
		{ID: "keep", Name: "A"},
		{Name: "B", Time: int64(1000)},
	}
	EnsureIDs(events)

	if events[0].ID != "keep" {
		t.Errorf("events[0].ID = %q, want %q", events[0].ID, "keep")
	}
	if events[1].ID != EventKey(Event{Name: "B", Time: int64(1000)}, 1) {
		t.Errorf("events[1].ID = %q, want synthesized key", events[1].ID)
	}
}

func TestParseImpact(t *testing.T) {
	tests := []struct {
		in   string
		want Impact
	}{
		{"High", ImpactHigh},
		{"high impact expected", ImpactHigh},
		{"3", ImpactHigh},
		{"Medium", ImpactMedium},
		{"moderate", ImpactMedium},
		{"LOW", ImpactLow},
		{"yellow", ImpactLow},
		{"Holiday", ImpactHoliday},
		{"Non-Economic", ImpactHoliday},
		{"", ImpactNone},
		{"unknown", ImpactNone},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseImpact(tt.in); got != tt.want {
				t.Errorf("ParseImpact(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilters_Match(t *testing.T) {
	usdHigh := Event{Currency: "USD", Impact: ImpactHigh, Source: "primary"}

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"zero filters", Filters{}, true},
		{"impact match", Filters{Impacts: []Impact{ImpactLow, ImpactHigh}}, true},
		{"impact miss", Filters{Impacts: []Impact{ImpactLow}}, false},
		{"impact spelled differently", Filters{Impacts: []Impact{"High"}}, true},
		{"currency case-insensitive", Filters{Currencies: []string{"usd"}}, true},
		{"currency miss", Filters{Currencies: []string{"EUR"}}, false},
		{"source match", Filters{Sources: []string{"primary"}}, true},
		{"source miss", Filters{Sources: []string{"ics"}}, false},
		{"currency padded", Filters{Currencies: []string{" usd "}}, true},
		{"source padded", Filters{Sources: []string{" Primary"}}, true},
		{"all match", Filters{Impacts: []Impact{ImpactHigh}, Currencies: []string{"USD"}, Sources: []string{"primary"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filters.Match(usdHigh); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilters_IsZero(t *testing.T) {
	if !(Filters{}).IsZero() {
		t.Error("Filters{}.IsZero() = false, want true")
	}
	if (Filters{Currencies: []string{"USD"}}).IsZero() {
		t.Error("IsZero() = true, want false")
	}
}

package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/econcal/internal/model"
)

var sampleICS = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//econcal//test//EN",
	"BEGIN:VEVENT",
	"UID:nfp",
	"DTSTAMP:20250101T000000Z",
	"DTSTART:20250307T133000Z",
	"SUMMARY:Non-Farm Payrolls",
	"X-CURRENCY:usd",
	"X-IMPACT:High",
	"CATEGORIES:Employment",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:claims",
	"DTSTAMP:20250101T000000Z",
	"DTSTART:20250306T133000Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20250313T133000Z",
	"SUMMARY:Initial Jobless Claims",
	"PRIORITY:5",
	"X-CURRENCY:USD",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:claims",
	"DTSTAMP:20250101T000000Z",
	"RECURRENCE-ID:20250320T133000Z",
	"DTSTART:20250320T143000Z",
	"SUMMARY:Initial Jobless Claims (delayed)",
	"X-CURRENCY:USD",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:holiday",
	"DTSTAMP:20250101T000000Z",
	"DTSTART;VALUE=DATE:20250317",
	"SUMMARY:Bank Holiday",
	"X-IMPACT:holiday",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTAMP:20250101T000000Z",
	"DTSTART:20250310T000000Z",
	"SUMMARY:No UID",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

func TestParse(t *testing.T) {
	vs, skipped, err := parse("cb", []byte(sampleICS))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(vs) != 4 {
		t.Fatalf("len(vs) = %d, want 4", len(vs))
	}

	nfp := vs[0]
	if nfp.uid != "nfp" || nfp.summary != "Non-Farm Payrolls" || nfp.currency != "USD" || nfp.impact != model.ImpactHigh {
		t.Errorf("nfp = %+v", nfp)
	}
	if !nfp.start.Equal(time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC)) {
		t.Errorf("nfp.start = %v", nfp.start)
	}
	if vs[1].impact != model.ImpactMedium {
		t.Errorf("claims impact = %q, want medium from PRIORITY:5", vs[1].impact)
	}
	if vs[1].rrule == "" || len(vs[1].exdates) != 1 {
		t.Errorf("claims rrule = %q, exdates = %v", vs[1].rrule, vs[1].exdates)
	}
	if vs[2].recurrence == nil {
		t.Error("override has no RECURRENCE-ID")
	}
	if !vs[3].allDay {
		t.Error("holiday not all-day")
	}
}

func TestParse_Empty(t *testing.T) {
	if _, _, err := parse("x", []byte("  ")); err == nil {
		t.Error("parse(empty) expected error")
	}
}

func TestExpand(t *testing.T) {
	vs, _, err := parse("cb", []byte(sampleICS))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)
	events, truncated := expand(vs, from, to, 0)
	if len(truncated) != 0 {
		t.Errorf("truncated = %v", truncated)
	}

	got := make(map[string]model.Event)
	for _, e := range events {
		got[e.ID] = e
	}
	wantIDs := []string{
		"nfp",
		"claims@20250306T133000Z",
		"claims@20250320T133000Z",
		"claims@20250327T133000Z",
		"holiday",
	}
	if len(got) != len(wantIDs) {
		t.Errorf("got %d events, want %d: %v", len(got), len(wantIDs), events)
	}
	for _, id := range wantIDs {
		if _, ok := got[id]; !ok {
			t.Errorf("missing %s", id)
		}
	}
	if _, ok := got["claims@20250313T133000Z"]; ok {
		t.Error("EXDATE occurrence was expanded")
	}

	delayed := got["claims@20250320T133000Z"]
	if at, _ := delayed.Instant(); at != time.Date(2025, 3, 20, 14, 30, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("override instant = %d", at)
	}
	if delayed.Name != "Initial Jobless Claims (delayed)" {
		t.Errorf("override name = %q", delayed.Name)
	}

	holiday := got["holiday"]
	if at, _ := holiday.Instant(); at != time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("holiday instant = %d", at)
	}
	if holiday.Extra["all_day"] != true {
		t.Errorf("holiday Extra = %v", holiday.Extra)
	}

	// A narrow window keeps only the occurrences inside it.
	events, _ = expand(vs, time.Date(2025, 3, 27, 0, 0, 0, 0, time.UTC), to, 0)
	if len(events) != 1 || events[0].ID != "claims@20250327T133000Z" {
		t.Errorf("narrow expand = %v", events)
	}

	// The cap truncates and reports the UID.
	_, truncated = expand(vs, from, to, 1)
	if len(truncated) != 1 || truncated[0] != "claims" {
		t.Errorf("truncated = %v, want [claims]", truncated)
	}
}

func TestPriorityImpact(t *testing.T) {
	tests := []struct {
		in   string
		want model.Impact
	}{
		{"1", model.ImpactHigh},
		{"4", model.ImpactHigh},
		{"5", model.ImpactMedium},
		{"9", model.ImpactLow},
		{"0", model.ImpactNone},
		{"x", model.ImpactNone},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := priorityImpact(tt.in); got != tt.want {
				t.Errorf("priorityImpact(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFetcher_ConditionalGet(t *testing.T) {
	var requests, notModified atomic.Int32
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(sampleICS))
	}))
	defer server.Close()

	f := NewFetcher(nil, time.Second, 0, nil)
	feed := Feed{ID: "cb", URL: server.URL + "/private/token.ics"}
	ctx := context.Background()

	first, err := f.Fetch(ctx, feed)
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	second, err := f.Fetch(ctx, feed)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if string(first) != string(second) {
		t.Error("304 response did not reuse the cached body")
	}
	if notModified.Load() != 1 {
		t.Errorf("notModified = %d, want 1", notModified.Load())
	}

	fail.Store(true)
	third, err := f.Fetch(ctx, feed)
	if err != nil {
		t.Fatalf("Fetch() with upstream failure and cache error = %v", err)
	}
	if string(third) != string(first) {
		t.Error("failure fallback did not return the cached body")
	}

	cold := NewFetcher(nil, time.Second, 0, nil)
	if _, err := cold.Fetch(ctx, feed); err == nil {
		t.Error("Fetch() without cache on 502 expected error")
	}
}

func TestFetcher_TTL(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(sampleICS))
	}))
	defer server.Close()

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := NewFetcher(nil, time.Second, time.Minute, nil)
	f.now = func() time.Time { return now }
	feed := Feed{ID: "cb", URL: server.URL}

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), feed); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1 within ttl", requests.Load())
	}

	now = now.Add(2 * time.Minute)
	if _, err := f.Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2 after ttl", requests.Load())
	}
}

func TestSource_QueryRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleICS))
	}))
	defer server.Close()

	f := NewFetcher(nil, time.Second, 0, nil)
	src := NewSource("central-banks", []Feed{{ID: "cb", URL: server.URL}}, f, "EUR", nil)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC).UnixMilli()

	all, err := src.QueryRange(context.Background(), start, end, model.Filters{})
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len(all) = %d, want 5", len(all))
	}
	var prev int64
	for i, e := range all {
		at, ok := e.Instant()
		if !ok || at < prev {
			t.Errorf("all[%d] out of order: %d after %d", i, at, prev)
		}
		prev = at
		if e.Source != "central-banks" {
			t.Errorf("all[%d].Source = %q", i, e.Source)
		}
	}

	high, err := src.QueryRange(context.Background(), start, end, model.Filters{Impacts: []model.Impact{model.ImpactHigh}})
	if err != nil {
		t.Fatalf("QueryRange(high) error = %v", err)
	}
	if len(high) != 1 || high[0].ID != "nfp" {
		t.Errorf("high = %v, want only nfp", high)
	}

	eur, err := src.QueryRange(context.Background(), start, end, model.Filters{Currencies: []string{"eur"}})
	if err != nil {
		t.Fatalf("QueryRange(eur) error = %v", err)
	}
	if len(eur) != 1 || eur[0].ID != "holiday" {
		t.Errorf("eur = %v, want the holiday stamped with the default currency", eur)
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://example.com/secret/token.ics?k=1"); got != "https://example.com/..." {
		t.Errorf("redactURL() = %q", got)
	}
	if got := redactURL("not a url"); got != "ics://redacted" {
		t.Errorf("redactURL(bad) = %q", got)
	}
}

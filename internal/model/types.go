package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rickgao/econcal/internal/instant"
)

// -----------------------------------------------------------------------------
// Event
// -----------------------------------------------------------------------------

// Event is one scheduled economic release.
//
// Only ID, Source and Time are read by classification. Every other
// attribute is passed through untouched.
type Event struct {
	ID       string // Upstream identifier, may be empty
	Name     string // Display title (e.g., "Non-Farm Employment Change")
	Time     any    // time.Time, ISO-8601 string, epoch ms, or instant.Pair
	Source   string // Backend/source name the event came from
	Currency string // ISO currency code (e.g., "USD")
	Impact   Impact // Normalized impact level
	Category string // Free-form category
	Actual   string // Released value, as published
	Forecast string // Consensus forecast, as published
	Previous string // Prior value, as published

	Extra map[string]any // Unrecognized upstream fields
}

// Instant resolves the event time to epoch milliseconds.
func (e Event) Instant() (int64, bool) {
	return instant.Resolve(e.Time)
}

// keyNamespace scopes synthesized event IDs.
var keyNamespace = uuid.MustParse("6f1c2b7e-4c8a-5d0e-9b3f-2a7d4e1c8b90")

// EventKey returns the identifier used for e at position index in a list.
// Upstream IDs win; otherwise a UUID is derived from name, time and index so
// repeated calls over the same list yield the same keys.
func EventKey(e Event, index int) string {
	if e.ID != "" {
		return e.ID
	}
	var ts string
	if ms, ok := e.Instant(); ok {
		ts = strconv.FormatInt(ms, 10)
	} else {
		ts = fmt.Sprintf("%v", e.Time)
	}
	data := e.Name + "\x00" + ts + "\x00" + strconv.Itoa(index)
	return uuid.NewSHA1(keyNamespace, []byte(data)).String()
}

// IdentityKey is EventKey qualified by source. Upstream IDs are only unique
// within their source, so a merged list may carry the same ID twice. The
// source is path-escaped, making the first "/" the separator.
func IdentityKey(e Event, index int) string {
	key := EventKey(e, index)
	if e.Source == "" {
		return key
	}
	return url.PathEscape(e.Source) + "/" + key
}

// EnsureIDs fills missing IDs in place using EventKey.
func EnsureIDs(events []Event) {
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = EventKey(events[i], i)
		}
	}
}

// -----------------------------------------------------------------------------
// Impact
// -----------------------------------------------------------------------------

// Impact is the expected market impact of a release.
type Impact string

const (
	ImpactNone    Impact = ""
	ImpactLow     Impact = "low"
	ImpactMedium  Impact = "medium"
	ImpactHigh    Impact = "high"
	ImpactHoliday Impact = "holiday"
)

// ParseImpact normalizes the impact spellings seen across calendar feeds:
// "High", "high impact expected", "3", "red" and similar. Unknown values
// map to ImpactNone.
func ParseImpact(s string) Impact {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return ImpactNone
	case s == "3" || s == "red" || strings.HasPrefix(s, "high"):
		return ImpactHigh
	case s == "2" || s == "orange" || strings.HasPrefix(s, "med") || strings.HasPrefix(s, "moderate"):
		return ImpactMedium
	case s == "1" || s == "yellow" || strings.HasPrefix(s, "low"):
		return ImpactLow
	case s == "gray" || s == "grey" || strings.HasPrefix(s, "holiday") || strings.HasPrefix(s, "non-economic"):
		return ImpactHoliday
	}
	return ImpactNone
}

// -----------------------------------------------------------------------------
// Filters
// -----------------------------------------------------------------------------

// Filters restricts events by attribute. An empty slice means no restriction
// on that attribute.
type Filters struct {
	Impacts    []Impact
	Currencies []string
	Sources    []string
}

// IsZero reports whether f restricts nothing.
func (f Filters) IsZero() bool {
	return len(f.Impacts) == 0 && len(f.Currencies) == 0 && len(f.Sources) == 0
}

// Match reports whether e passes every attribute restriction in f.
// Currency and source values compare case-insensitively, ignoring
// surrounding space.
func (f Filters) Match(e Event) bool {
	if len(f.Impacts) > 0 && !containsImpact(f.Impacts, e.Impact) {
		return false
	}
	if len(f.Currencies) > 0 && !containsFold(f.Currencies, e.Currency) {
		return false
	}
	if len(f.Sources) > 0 && !containsFold(f.Sources, e.Source) {
		return false
	}
	return true
}

func containsImpact(set []Impact, v Impact) bool {
	for _, s := range set {
		if ParseImpact(string(s)) == v {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

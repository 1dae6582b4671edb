package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/rickgao/econcal/internal/model"
)

// vevent is one parsed VEVENT before recurrence expansion.
type vevent struct {
	feed string

	uid      string
	summary  string
	category string
	currency string
	impact   model.Impact

	start  time.Time
	allDay bool

	rrule      string
	exdates    []time.Time
	recurrence *time.Time // RECURRENCE-ID of an overriding instance
}

// parse decodes a feed body. VEVENTs that cannot be read are skipped and
// counted.
func parse(feed string, body []byte) (events []vevent, skipped int, err error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, 0, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse calendar: %w", err)
	}

	for _, ve := range cal.Events() {
		ev, err := parseVEvent(feed, ve)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func parseVEvent(feed string, ve *ical.VEvent) (vevent, error) {
	out := vevent{feed: feed}

	p := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if p == nil || p.Value == "" {
		return out, errors.New("missing UID")
	}
	out.uid = p.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = unescape(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		out.category = unescape(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentProperty("X-CURRENCY")); p != nil {
		out.currency = strings.ToUpper(strings.TrimSpace(p.Value))
	}
	if p := ve.GetProperty(ical.ComponentProperty("X-IMPACT")); p != nil {
		out.impact = model.ParseImpact(p.Value)
	} else if p := ve.GetProperty(ical.ComponentPropertyPriority); p != nil {
		out.impact = priorityImpact(p.Value)
	}

	dt := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dt == nil {
		return out, errors.New("missing DTSTART")
	}
	if vs := dt.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		out.allDay = true
	}
	if !strings.Contains(dt.Value, "T") {
		out.allDay = true
	}

	var err error
	if out.allDay {
		out.start, err = ve.GetAllDayStartAt()
	} else {
		out.start, err = ve.GetStartAt()
	}
	if err != nil {
		if out.start, err = parseICSTime(dt.Value); err != nil {
			return out, fmt.Errorf("DTSTART %q: %w", dt.Value, err)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part); err == nil {
				out.exdates = append(out.exdates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.recurrence = &t
		}
	}

	return out, nil
}

// priorityImpact maps RFC 5545 PRIORITY (1 highest, 9 lowest, 0 undefined).
func priorityImpact(v string) model.Impact {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return model.ImpactNone
	}
	switch {
	case n >= 1 && n <= 4:
		return model.ImpactHigh
	case n == 5:
		return model.ImpactMedium
	case n >= 6 && n <= 9:
		return model.ImpactLow
	}
	return model.ImpactNone
}

// parseICSTime parses the basic DATE and DATE-TIME forms. Floating times
// are read as UTC.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}
	return time.ParseInLocation("20060102", v, time.UTC)
}

var textUnescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, " ", `\N`, " ", `\\`, `\`)

func unescape(s string) string {
	return strings.TrimSpace(textUnescaper.Replace(s))
}

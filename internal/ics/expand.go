package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/rickgao/econcal/internal/model"
)

// DefaultMaxOccurrences caps the expansion of one recurring event.
const DefaultMaxOccurrences = 5000

// expand turns parsed VEVENTs into events starting inside [start, end].
// Recurring events yield one event per occurrence, with RECURRENCE-ID
// overrides replacing the generated instance. truncated lists the UIDs that
// hit limit.
func expand(vs []vevent, start, end time.Time, limit int) (events []model.Event, truncated []string) {
	if end.Before(start) {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}

	overrides := make(map[string][]vevent)
	var bases []vevent
	for _, v := range vs {
		if v.recurrence != nil {
			overrides[v.uid] = append(overrides[v.uid], v)
			continue
		}
		bases = append(bases, v)
	}

	for _, v := range bases {
		if v.rrule == "" {
			if inRange(v.start, start, end) {
				events = append(events, v.event(v.uid, v.start))
			}
			continue
		}

		r, err := rrule.StrToRRule(v.rrule)
		if err != nil {
			// An unreadable rule still has its first occurrence.
			if inRange(v.start, start, end) {
				events = append(events, v.event(v.uid, v.start))
			}
			continue
		}
		r.DTStart(v.start)

		var set rrule.Set
		set.RRule(r)
		for _, ex := range v.exdates {
			set.ExDate(ex.In(v.start.Location()))
		}

		loc := v.start.Location()
		occs := set.Between(start.In(loc), end.In(loc), true)
		if len(occs) > limit {
			occs = occs[:limit]
			truncated = append(truncated, v.uid)
		}
		for _, at := range occs {
			id := v.uid + "@" + at.UTC().Format("20060102T150405Z")
			inst := v
			if o, ok := findOverride(overrides[v.uid], at); ok {
				inst = o
				if !inRange(o.start, start, end) {
					continue
				}
				events = append(events, inst.event(id, o.start))
				continue
			}
			events = append(events, inst.event(id, at))
		}
	}
	return events, truncated
}

func findOverride(overs []vevent, at time.Time) (vevent, bool) {
	for _, o := range overs {
		if o.recurrence.Equal(at) {
			return o, true
		}
	}
	return vevent{}, false
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// event builds the model event for one occurrence. All-day occurrences are
// dated at UTC midnight of their calendar day.
func (v vevent) event(id string, at time.Time) model.Event {
	e := model.Event{
		ID:       id,
		Name:     v.summary,
		Currency: v.currency,
		Impact:   v.impact,
		Category: v.category,
		Extra:    map[string]any{"feed": v.feed, "uid": v.uid},
	}
	if v.allDay {
		e.Time = time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		e.Extra["all_day"] = true
	} else {
		e.Time = at.UTC()
	}
	return e
}

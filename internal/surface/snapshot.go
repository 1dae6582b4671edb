package surface

import (
	"time"

	"github.com/rickgao/econcal/internal/classify"
	"github.com/rickgao/econcal/internal/countdown"
	"github.com/rickgao/econcal/internal/dayboundary"
	"github.com/rickgao/econcal/internal/model"
)

// Row is one event as a surface displays it.
type Row struct {
	Key       string              `json:"key"` // matches Snapshot.Now and NextSummary.IDs
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Source    string              `json:"source,omitempty"`
	Currency  string              `json:"currency,omitempty"`
	Impact    model.Impact        `json:"impact,omitempty"`
	Category  string              `json:"category,omitempty"`
	Actual    string              `json:"actual,omitempty"`
	Forecast  string              `json:"forecast,omitempty"`
	Previous  string              `json:"previous,omitempty"`
	InstantMs *int64              `json:"instant_ms,omitempty"`
	State     classify.State      `json:"state"`
	Bucket    *dayboundary.Bucket `json:"bucket,omitempty"`
	Countdown string              `json:"countdown,omitempty"` // NEXT and FUTURE only
	Relative  string              `json:"relative,omitempty"`
	Day       string              `json:"day,omitempty"`   // local YYYY-MM-DD
	Clock     string              `json:"clock,omitempty"` // local HH:MM
	PastStyle bool                `json:"past_for_display"`
	Extra     map[string]any      `json:"extra,omitempty"`
}

// NextSummary describes the NEXT set.
type NextSummary struct {
	InstantMs int64    `json:"instant_ms"`
	Countdown string   `json:"countdown"`
	Relative  string   `json:"relative"`
	IDs       []string `json:"ids"` // row keys
}

// Snapshot is one classification pass of a surface.
type Snapshot struct {
	Surface     string       `json:"surface"`
	Timezone    string       `json:"timezone"`
	NowMs       int64        `json:"now_ms"`
	Now         []string     `json:"now"` // row keys
	Next        *NextSummary `json:"next,omitempty"`
	Rows        []Row        `json:"rows"`
	LastRefresh *time.Time   `json:"last_refresh,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
}

// Classification returns the NOW/NEXT result the snapshot was built from.
func (s Snapshot) Classification() classify.Result {
	res := classify.Result{Now: classify.IDSet{}, Next: classify.IDSet{}}
	for _, id := range s.Now {
		res.Now[id] = struct{}{}
	}
	if s.Next != nil {
		res.HasNext = true
		res.NextInstant = s.Next.InstantMs
		for _, id := range s.Next.IDs {
			res.Next[id] = struct{}{}
		}
	}
	return res
}

// BuildSnapshot classifies events at now and renders every row for loc.
// Rows keep the order of events.
func BuildSnapshot(name string, events []model.Event, now int64, window time.Duration, loc *time.Location) Snapshot {
	if loc == nil {
		loc = time.UTC
	}
	res := classify.Classify(events, now, window)

	snap := Snapshot{
		Surface:  name,
		Timezone: loc.String(),
		NowMs:    now,
		Now:      res.Now.Sorted(),
		Rows:     make([]Row, 0, len(events)),
	}
	if res.HasNext {
		delta := res.NextInstant - now
		snap.Next = &NextSummary{
			InstantMs: res.NextInstant,
			Countdown: countdown.Format(delta),
			Relative:  countdown.Relative(delta),
			IDs:       res.Next.Sorted(),
		}
	}

	for i, e := range events {
		key := model.IdentityKey(e, i)
		at, ok := e.Instant()
		row := Row{
			Key:      key,
			ID:       model.EventKey(e, i),
			Name:     e.Name,
			Source:   e.Source,
			Currency: e.Currency,
			Impact:   e.Impact,
			Category: e.Category,
			Actual:   e.Actual,
			Forecast: e.Forecast,
			Previous: e.Previous,
			State:    res.StateOf(key, at, ok, now),
			Extra:    e.Extra,
		}
		if ok {
			at := at
			bucket := dayboundary.BucketOf(at, now, loc, window)
			row.InstantMs = &at
			row.Bucket = &bucket
			row.Relative = countdown.Relative(at - now)
			row.Day = dayboundary.DayKey(at, loc)
			row.Clock = dayboundary.Clock(at, loc)
			row.PastStyle = dayboundary.IsPastForDisplay(at, now, loc, window)
			if row.State == classify.StateNext || row.State == classify.StateFuture {
				row.Countdown = countdown.Format(at - now)
			}
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap
}

package adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickgao/econcal/internal/instant"
	"github.com/rickgao/econcal/internal/model"
)

// Wire is the canonical JSON shape econcal emits.
type Wire struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Time      string `json:"time,omitempty"`
	InstantMs *int64 `json:"instant_ms,omitempty"`
	Source    string `json:"source,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Impact    string `json:"impact,omitempty"`
	Category  string `json:"category,omitempty"`
	Actual    string `json:"actual,omitempty"`
	Forecast  string `json:"forecast,omitempty"`
	Previous  string `json:"previous,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Encode converts e to its wire form. Resolvable times are written as
// RFC 3339 in UTC; others keep their raw text.
func Encode(e model.Event) Wire {
	w := Wire{
		ID:       e.ID,
		Name:     e.Name,
		Source:   e.Source,
		Currency: e.Currency,
		Impact:   string(e.Impact),
		Category: e.Category,
		Actual:   e.Actual,
		Forecast: e.Forecast,
		Previous: e.Previous,
		Extra:    e.Extra,
	}
	if t, ok := instant.Time(e.Time); ok {
		ms := t.UnixMilli()
		w.Time = t.Format(time.RFC3339Nano)
		w.InstantMs = &ms
	} else if e.Time != nil {
		w.Time = fmt.Sprint(e.Time)
	}
	return w
}

// EncodeAll converts events to wire form, keying events without IDs.
func EncodeAll(events []model.Event) []Wire {
	out := make([]Wire, len(events))
	for i, e := range events {
		if e.ID == "" {
			e.ID = model.EventKey(e, i)
		}
		out[i] = Encode(e)
	}
	return out
}

// MarshalEvents encodes events as a JSON array of Wire records.
func MarshalEvents(events []model.Event) ([]byte, error) {
	return json.Marshal(EncodeAll(events))
}
